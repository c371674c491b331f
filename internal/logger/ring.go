package logger

import (
	"context"
	"sync"
)

// RingSink keeps the newest records in memory for the owner console.
type RingSink struct {
	mu      sync.Mutex
	records []Record
	next    int
	full    bool
}

func NewRingSink(size int) *RingSink {
	if size <= 0 {
		size = 1
	}
	return &RingSink{records: make([]Record, size)}
}

func (s *RingSink) Write(_ context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[s.next] = r
	s.next = (s.next + 1) % len(s.records)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Records returns the kept records, oldest first.
func (s *RingSink) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.full {
		return append([]Record(nil), s.records[:s.next]...)
	}
	out := make([]Record, 0, len(s.records))
	out = append(out, s.records[s.next:]...)
	return append(out, s.records[:s.next]...)
}

// Filter returns kept records of the given type, oldest first.
func (s *RingSink) Filter(t Type) []Record {
	var out []Record
	for _, r := range s.Records() {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}
