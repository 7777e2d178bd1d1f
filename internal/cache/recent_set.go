// Intelstream - Real-time Intelligence Aggregation and Streaming
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/intelstream

// Package cache provides the bounded recency set pollers use to remember
// which upstream documents they have already processed.
package cache

import "sync"

type recentEntry struct {
	key  string
	prev *recentEntry
	next *recentEntry
}

// RecentSet is a thread-safe set of keys ordered by recency of insertion.
//
// When the set grows past capacity it is trimmed in one step to the retain
// most recent keys, so trimming happens once per capacity-retain insertions
// rather than on every Add. Keys older than that window are forgotten; a
// source that re-delivers one will be processed again and the store's upsert
// absorbs the duplicate.
type RecentSet struct {
	mu sync.Mutex

	capacity int
	retain   int

	items map[string]*recentEntry

	// head.next is the most recent key, tail.prev the oldest.
	head *recentEntry
	tail *recentEntry
}

// NewRecentSet creates a set that trims to retain keys once it exceeds capacity.
func NewRecentSet(capacity, retain int) *RecentSet {
	if capacity <= 0 {
		capacity = 1000
	}
	if retain <= 0 || retain > capacity {
		retain = capacity / 2
	}

	s := &RecentSet{
		capacity: capacity,
		retain:   retain,
		items:    make(map[string]*recentEntry, capacity+1),
		head:     &recentEntry{},
		tail:     &recentEntry{},
	}
	s.head.next = s.tail
	s.tail.prev = s.head
	return s
}

// Contains reports whether key is in the set.
func (s *RecentSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	return ok
}

// Add records key as the most recent entry.
func (s *RecentSet) Add(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(key)
}

// AddIfAbsent records key and reports whether it was new.
func (s *RecentSet) AddIfAbsent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[key]; ok {
		return false
	}
	s.addLocked(key)
	return true
}

func (s *RecentSet) addLocked(key string) {
	if entry, ok := s.items[key]; ok {
		s.unlink(entry)
		s.pushFront(entry)
		return
	}

	entry := &recentEntry{key: key}
	s.pushFront(entry)
	s.items[key] = entry

	if len(s.items) > s.capacity {
		for len(s.items) > s.retain {
			oldest := s.tail.prev
			s.unlink(oldest)
			delete(s.items, oldest.key)
		}
	}
}

// Remove forgets key. It returns true if the key was present.
func (s *RecentSet) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.items[key]
	if !ok {
		return false
	}
	s.unlink(entry)
	delete(s.items, key)
	return true
}

// Len returns the number of keys in the set.
func (s *RecentSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *RecentSet) pushFront(entry *recentEntry) {
	entry.prev = s.head
	entry.next = s.head.next
	s.head.next.prev = entry
	s.head.next = entry
}

func (s *RecentSet) unlink(entry *recentEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
	entry.prev = nil
	entry.next = nil
}
