package domain

import (
	"github.com/google/uuid"
)

// StudyMode selects which side of a card the learner is asked to recall.
type StudyMode string

const (
	StudyModeUnset StudyMode = ""
	StudyModeBack  StudyMode = "recall-back"
	StudyModeFront StudyMode = "recall-front"
	StudyModeBoth  StudyMode = "recall-both"
)

// ParseStudyMode accepts the persisted names plus the short forms
// "back", "front", "both" and "none".
func ParseStudyMode(s string) (StudyMode, bool) {
	switch s {
	case "", "none":
		return StudyModeUnset, true
	case "back", string(StudyModeBack):
		return StudyModeBack, true
	case "front", string(StudyModeFront):
		return StudyModeFront, true
	case "both", string(StudyModeBoth):
		return StudyModeBoth, true
	}
	return StudyModeUnset, false
}

// Merge folds other into m. Asking for both sides, or for front and back
// from different tags, yields StudyModeBoth.
func (m StudyMode) Merge(other StudyMode) StudyMode {
	switch {
	case other == StudyModeUnset:
		return m
	case m == StudyModeUnset:
		return other
	case m == other:
		return m
	default:
		return StudyModeBoth
	}
}

// Bucket is the TagSelection bucket a tag is placed in.
type Bucket string

const (
	BucketNone    Bucket = ""
	BucketAll     Bucket = "all"
	BucketAny     Bucket = "any"
	BucketExclude Bucket = "exclude"
)

// ParseBucket accepts "all", "any", "exclude" and "none".
func ParseBucket(s string) (Bucket, bool) {
	switch Bucket(s) {
	case BucketAll, BucketAny, BucketExclude:
		return Bucket(s), true
	case BucketNone, "none":
		return BucketNone, true
	}
	return BucketNone, false
}

// Tag labels cards. Names are not unique.
type Tag struct {
	ID        uuid.UUID `db:"id"`
	Name      string    `db:"name"`
	StudyMode StudyMode `db:"study_mode"`
	Bucket    Bucket    `db:"bucket"`
}

// EffectiveStudyMode computes a card's study mode from its tags. Tags the
// card references but that are missing from tags are ignored.
func EffectiveStudyMode(card *Card, tags map[uuid.UUID]*Tag) StudyMode {
	mode := StudyModeUnset
	for id := range card.Tags {
		t, ok := tags[id]
		if !ok {
			continue
		}
		mode = mode.Merge(t.StudyMode)
		if mode == StudyModeBoth {
			break
		}
	}
	return mode
}

// CommittedCards filters cards down to the non-empty members of tag.
func CommittedCards(tag uuid.UUID, cards []*Card) []*Card {
	var out []*Card
	for _, c := range cards {
		if c.HasTag(tag) && !c.IsEmpty() {
			out = append(out, c)
		}
	}
	return out
}
