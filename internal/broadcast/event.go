// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

package broadcast

import (
	"bytes"
	"io"
	"net/http"
	"strings"
)

// Reserved event names.
const (
	// EventNewIntel carries one newly ingested item. Only this event is cached.
	EventNewIntel = "new_intel"
	// EventInitialBatch carries a chunk of the resume backlog as a JSON array.
	EventInitialBatch = "initial_batch"
)

// Event is one message delivered to a subscriber.
type Event struct {
	// ID is the id of the last item the event carries; empty for events not tied to an item.
	ID   string
	Name string
	Data []byte
}

// EventWriter is the transport a Subscription streams into.
type EventWriter interface {
	WriteEvent(ev Event) error
	WriteKeepAlive() error
}

var keepAliveLine = []byte(": keep-alive\n\n")

// EncodeSSE writes ev in text/event-stream framing.
func EncodeSSE(w io.Writer, ev Event) error {
	var buf bytes.Buffer
	if ev.ID != "" {
		buf.WriteString("id: ")
		buf.WriteString(sanitizeField(ev.ID))
		buf.WriteByte('\n')
	}
	if ev.Name != "" {
		buf.WriteString("event: ")
		buf.WriteString(sanitizeField(ev.Name))
		buf.WriteByte('\n')
	}
	for _, line := range bytes.Split(ev.Data, []byte{'\n'}) {
		buf.WriteString("data: ")
		buf.Write(line)
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	_, err := w.Write(buf.Bytes())
	return err
}

// sanitizeField keeps a field on one line.
func sanitizeField(s string) string {
	return strings.NewReplacer("\r", "", "\n", "").Replace(s)
}

// SSEWriter writes events to an HTTP response as server-sent events,
// flushing after every write.
type SSEWriter struct {
	w       io.Writer
	flusher http.Flusher
}

// NewSSEWriter wraps w. Flushing is enabled when w implements http.Flusher.
func NewSSEWriter(w io.Writer) *SSEWriter {
	flusher, _ := w.(http.Flusher)
	return &SSEWriter{w: w, flusher: flusher}
}

// WriteEvent implements EventWriter.
func (s *SSEWriter) WriteEvent(ev Event) error {
	if err := EncodeSSE(s.w, ev); err != nil {
		return err
	}
	s.flush()
	return nil
}

// WriteKeepAlive implements EventWriter with a comment line.
func (s *SSEWriter) WriteKeepAlive() error {
	if _, err := s.w.Write(keepAliveLine); err != nil {
		return err
	}
	s.flush()
	return nil
}

func (s *SSEWriter) flush() {
	if s.flusher != nil {
		s.flusher.Flush()
	}
}
