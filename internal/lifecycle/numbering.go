package lifecycle

import (
	"fmt"
	"sync"
	"time"
)

// Numbering
//
// Alert, case and SAR numbers are day-scoped monotonic sequences in the
// fixed external format PREFIX-YYYYMMDD-NNNNNN. The counter read-modify-
// write is serialized on a mutex; the day rollover resets the suffix to 1.

// Sequence issues day-scoped monotonic numbers for one prefix.
type Sequence struct {
	prefix string

	mu   sync.Mutex
	day  string
	next int
}

// NewSequence creates a sequence for the given prefix (ALT, CASE, SAR).
func NewSequence(prefix string) *Sequence {
	return &Sequence{prefix: prefix}
}

// Next issues the next number for the calendar day of now (UTC).
func (s *Sequence) Next(now time.Time) string {
	day := now.UTC().Format("20060102")

	s.mu.Lock()
	defer s.mu.Unlock()
	if day != s.day {
		s.day = day
		s.next = 0
	}
	s.next++
	return fmt.Sprintf("%s-%s-%06d", s.prefix, day, s.next)
}
