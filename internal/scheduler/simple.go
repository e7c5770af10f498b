package scheduler

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/conorfennell/flashcards/internal/domain"
)

// Params holds the parameters for the simple stability model.
type Params struct {
	A                float64 // scales the overall memory increase
	B                float64 // difficulty exponent
	C                float64 // stability exponent
	D                float64 // retention effect scaler
	DesiredRetention float64 // desired retention rate (e.g., 0.9 for 90%)
}

// DefaultParams provides a set of sensible default parameters to start with.
func DefaultParams() *Params {
	return &Params{
		A:                0.2,
		B:                0.5,
		C:                0.1,
		D:                4.0,
		DesiredRetention: 0.9,
	}
}

// CardState holds the memory state of a card.
type CardState struct {
	Stability  float64   `json:"stability"`
	Difficulty float64   `json:"difficulty"`
	LastReview time.Time `json:"last_review"`
}

// Simple is a lightweight stability/difficulty strategy. It schedules whole
// days only, so a lapse is due again the next day.
type Simple struct {
	params *Params
}

// NewSimple returns the strategy with p, or DefaultParams when p is nil.
func NewSimple(p *Params) *Simple {
	if p == nil {
		p = DefaultParams()
	}
	return &Simple{params: p}
}

func (s *Simple) Name() string { return "simple" }

func (s *Simple) Initial(now time.Time) domain.SchedulerState {
	state, err := json.Marshal(CardState{LastReview: now})
	if err != nil {
		panic(fmt.Errorf("simple: encode initial state: %w", err))
	}
	return state
}

func (s *Simple) Next(state domain.SchedulerState, rating Rating, now time.Time) (domain.SchedulerState, time.Time, error) {
	var current CardState
	if err := json.Unmarshal(state, &current); err != nil {
		return nil, time.Time{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if bad(current.Stability) || bad(current.Difficulty) {
		return nil, time.Time{}, fmt.Errorf("%w: stability %v difficulty %v", ErrCorruptState, current.Stability, current.Difficulty)
	}

	next := s.params.NextState(current, rating, now)
	encoded, err := json.Marshal(next)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("simple: encode state: %w", err)
	}
	return encoded, NextDueDate(now, next.Stability), nil
}

// NextState calculates the next stability and difficulty based on a review.
func (p *Params) NextState(currentState CardState, rating Rating, now time.Time) CardState {
	if rating == Again {
		// Forgotten: stability drops back to a single day.
		return CardState{
			Stability:  1,
			Difficulty: math.Min(10, currentState.Difficulty+0.5),
			LastReview: now,
		}
	}

	newStability := p.calculateNewStability(currentState.Stability, currentState.Difficulty)
	newDifficulty := currentState.Difficulty
	if rating == Hard {
		newDifficulty = math.Min(10, newDifficulty+0.1)
	}

	return CardState{
		Stability:  newStability,
		Difficulty: newDifficulty,
		LastReview: now,
	}
}

// calculateNewStability applies the stability formula for a successful review.
func (p *Params) calculateNewStability(stability, difficulty float64) float64 {
	// Formula: S' = S * (1 + a * D^(-b) * S^c * (e^(d * (1-R)) - 1))
	if stability < 1 {
		stability = 1
	}
	if difficulty < 1 {
		difficulty = 1
	}

	factor := p.A * math.Pow(difficulty, -p.B) * math.Pow(stability, p.C)
	exponent := p.D * (1 - p.DesiredRetention)
	multiplier := math.Exp(exponent) - 1

	return stability * (1 + factor*multiplier)
}

// NextDueDate schedules the next review round(stability) days after now.
func NextDueDate(now time.Time, stability float64) time.Time {
	days := int(math.Round(stability))
	if days < 1 {
		days = 1
	}
	return now.AddDate(0, 0, days)
}
