package core

import (
	"slices"
	"strings"
	"sync"
)

// Selection holds the active case shade shared between views. Subscribers
// are called synchronously, in subscription order, whenever the shade changes.
type Selection struct {
	mu          sync.Mutex
	shade       string
	subscribers map[int]func(shade string)
	next        int
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{subscribers: make(map[int]func(string))}
}

// Shade returns the selected shade, or "" when nothing is selected.
func (s *Selection) Shade() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shade
}

// Set selects shade and notifies subscribers when it differs from the
// current one.
func (s *Selection) Set(shade string) {
	shade = strings.TrimSpace(shade)
	s.mu.Lock()
	if shade == s.shade {
		s.mu.Unlock()
		return
	}
	s.shade = shade
	fns := s.snapshot()
	s.mu.Unlock()
	for _, fn := range fns {
		fn(shade)
	}
}

// Clear drops the selection.
func (s *Selection) Clear() { s.Set("") }

// Subscribe registers fn and returns a function that removes it.
func (s *Selection) Subscribe(fn func(shade string)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subscribers[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

func (s *Selection) snapshot() []func(string) {
	ids := make([]int, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(string), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subscribers[id])
	}
	return fns
}
