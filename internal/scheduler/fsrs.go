package scheduler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/open-spaced-repetition/go-fsrs/v3"

	"github.com/conorfennell/flashcards/internal/domain"
)

// FSRSOptions tunes the FSRS engine. Zero values keep the library defaults.
type FSRSOptions struct {
	RequestRetention float64
	MaximumInterval  float64
	EnableFuzz       bool
	DisableShortTerm bool
}

// FSRS schedules with the go-fsrs implementation of the FSRS algorithm.
// Its state is the JSON encoding of fsrs.Card.
type FSRS struct {
	engine *fsrs.FSRS
}

// NewFSRS builds the engine from the default parameter set.
func NewFSRS(opts FSRSOptions) *FSRS {
	p := fsrs.DefaultParam()
	if opts.RequestRetention > 0 {
		p.RequestRetention = opts.RequestRetention
	}
	if opts.MaximumInterval > 0 {
		p.MaximumInterval = opts.MaximumInterval
	}
	p.EnableFuzz = opts.EnableFuzz
	p.EnableShortTerm = !opts.DisableShortTerm
	return &FSRS{engine: fsrs.NewFSRS(p)}
}

func (a *FSRS) Name() string { return "fsrs" }

func (a *FSRS) Initial(now time.Time) domain.SchedulerState {
	card := fsrs.NewCard()
	card.Due = now
	state, err := json.Marshal(card)
	if err != nil {
		panic(fmt.Errorf("fsrs: encode initial state: %w", err))
	}
	return state
}

func (a *FSRS) Next(state domain.SchedulerState, rating Rating, now time.Time) (domain.SchedulerState, time.Time, error) {
	card, err := decodeFSRSCard(state)
	if err != nil {
		return nil, time.Time{}, err
	}

	info, ok := a.engine.Repeat(card, now)[fsrs.Rating(rating)]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("fsrs: no schedule for rating %d", rating)
	}

	next, err := json.Marshal(info.Card)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("fsrs: encode state: %w", err)
	}
	return next, info.Card.Due, nil
}

func decodeFSRSCard(state domain.SchedulerState) (fsrs.Card, error) {
	var card fsrs.Card
	dec := json.NewDecoder(bytes.NewReader(state))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&card); err != nil {
		return fsrs.Card{}, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	if card.State < fsrs.New || card.State > fsrs.Relearning {
		return fsrs.Card{}, fmt.Errorf("%w: state %d", ErrCorruptState, card.State)
	}
	if bad(card.Stability) || bad(card.Difficulty) {
		return fsrs.Card{}, fmt.Errorf("%w: stability %v difficulty %v", ErrCorruptState, card.Stability, card.Difficulty)
	}
	return card, nil
}

func bad(f float64) bool {
	return f < 0 || math.IsNaN(f) || math.IsInf(f, 0)
}
