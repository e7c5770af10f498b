// Package scheduler turns a review outcome into a new per-card algorithm
// state and due date. The spaced-repetition algorithm itself is a pluggable
// Algorithm; the rest of the module only ever sees domain.SchedulerState.
package scheduler

import (
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/flashcards/internal/domain"
)

var (
	ErrCorruptState     = errors.New("scheduler: corrupt scheduler state")
	ErrInvalidOutcome   = errors.New("scheduler: invalid outcome")
	ErrUnknownAlgorithm = errors.New("scheduler: unknown algorithm")
)

// Rating is the algorithm's internal grade. Only Again and Good are
// reachable through outcomes.
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

// RatingFor maps a coarse outcome to a rating.
func RatingFor(o domain.Outcome) (Rating, error) {
	switch o {
	case domain.OutcomeOK:
		return Good, nil
	case domain.OutcomeFail:
		return Again, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidOutcome, o)
}

// Algorithm is a spaced-repetition strategy. Implementations must be pure:
// the same inputs always produce the same outputs and no input is mutated.
type Algorithm interface {
	Name() string
	// Initial returns the default state for a card created at now.
	Initial(now time.Time) domain.SchedulerState
	// Next applies rating at now and returns the new state and due date.
	Next(state domain.SchedulerState, rating Rating, now time.Time) (domain.SchedulerState, time.Time, error)
}

// Scheduler wraps an Algorithm behind the outcome-based contract.
type Scheduler struct {
	algo Algorithm
}

// New returns a Scheduler using algo.
func New(algo Algorithm) *Scheduler {
	return &Scheduler{algo: algo}
}

// Algorithm returns the wrapped strategy.
func (s *Scheduler) Algorithm() Algorithm {
	return s.algo
}

// InitialState is the default state anchored at now.
func (s *Scheduler) InitialState(now time.Time) domain.SchedulerState {
	return s.algo.Initial(now)
}

// NewCard creates a card whose state is anchored at now.
func (s *Scheduler) NewCard(front, back, notes string, now time.Time) *domain.Card {
	return domain.NewCard(front, back, notes, now, s.algo.Initial(now))
}

// ApplyOutcome computes the state and due date that follow outcome. It has no
// side effects. A structurally invalid state or an unknown outcome is a
// programming error and panics; there is no meaningful partial result.
func (s *Scheduler) ApplyOutcome(state domain.SchedulerState, outcome domain.Outcome, now time.Time) (domain.SchedulerState, time.Time) {
	rating, err := RatingFor(outcome)
	if err != nil {
		panic(err)
	}
	next, due, err := s.algo.Next(state, rating, now)
	if err != nil {
		panic(fmt.Errorf("%s: %w", s.algo.Name(), err))
	}
	return next, due
}

// ByName returns the algorithm called name, "fsrs" or "simple".
func ByName(name string, opts FSRSOptions) (Algorithm, error) {
	switch name {
	case "", "fsrs":
		return NewFSRS(opts), nil
	case "simple":
		return NewSimple(DefaultParams()), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}
