package crawler

import (
	"errors"
	"fmt"
)

// CrawlState is the lifecycle position of a node in the crawl graph.
type CrawlState int

// Crawl states. Uncrawled is the zero value.
const (
	StateUncrawled CrawlState = iota
	StateInProgress
	StateComplete
	StateUnreachable
)

// ErrInvalidTransition is returned when a state change is not allowed.
var ErrInvalidTransition = errors.New("invalid crawl state transition")

// String implements fmt.Stringer.
func (s CrawlState) String() string {
	switch s {
	case StateUncrawled:
		return "uncrawled"
	case StateInProgress:
		return "in_progress"
	case StateComplete:
		return "complete"
	case StateUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("CrawlState(%d)", int(s))
	}
}

// Terminal reports whether no further transitions leave s.
func (s CrawlState) Terminal() bool {
	return s == StateComplete || s == StateUnreachable
}

// CanTransition reports whether moving from s to next is permitted:
//
//	Uncrawled  -> InProgress | Unreachable
//	InProgress -> Complete | Unreachable
//
// Setting a node to the state it already holds is always allowed.
func (s CrawlState) CanTransition(next CrawlState) bool {
	if s == next {
		return true
	}
	switch s {
	case StateUncrawled:
		return next == StateInProgress || next == StateUnreachable
	case StateInProgress:
		return next == StateComplete || next == StateUnreachable
	default:
		return false
	}
}

func validateTransition(from, to CrawlState) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
