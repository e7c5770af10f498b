package domain

import "github.com/google/uuid"

// TagSelection partitions tags into the all, any and exclude buckets. A tag
// lives in at most one bucket because membership is a single map entry.
type TagSelection struct {
	buckets map[uuid.UUID]Bucket
}

// NewTagSelection returns an empty selection.
func NewTagSelection() TagSelection {
	return TagSelection{buckets: map[uuid.UUID]Bucket{}}
}

// SelectionFromTags builds a selection from the tags' persisted bucket
// markers.
func SelectionFromTags(tags []*Tag) TagSelection {
	sel := NewTagSelection()
	for _, t := range tags {
		sel.Set(t.ID, t.Bucket)
	}
	return sel
}

// Set moves tag into bucket. BucketNone removes it from the selection.
func (s *TagSelection) Set(tag uuid.UUID, bucket Bucket) {
	if s.buckets == nil {
		s.buckets = map[uuid.UUID]Bucket{}
	}
	if bucket == BucketNone {
		delete(s.buckets, tag)
		return
	}
	s.buckets[tag] = bucket
}

// BucketOf returns the bucket tag is in.
func (s TagSelection) BucketOf(tag uuid.UUID) Bucket {
	return s.buckets[tag]
}

func (s TagSelection) All() []uuid.UUID     { return s.in(BucketAll) }
func (s TagSelection) Any() []uuid.UUID     { return s.in(BucketAny) }
func (s TagSelection) Exclude() []uuid.UUID { return s.in(BucketExclude) }

// HasPositiveFilter reports whether the all or any bucket is non-empty.
func (s TagSelection) HasPositiveFilter() bool {
	for _, b := range s.buckets {
		if b == BucketAll || b == BucketAny {
			return true
		}
	}
	return false
}

// IsEmpty reports whether no tag is selected at all.
func (s TagSelection) IsEmpty() bool {
	return len(s.buckets) == 0
}

func (s TagSelection) in(bucket Bucket) []uuid.UUID {
	var ids []uuid.UUID
	for id, b := range s.buckets {
		if b == bucket {
			ids = append(ids, id)
		}
	}
	return ids
}
