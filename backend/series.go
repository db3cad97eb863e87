package backend

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"time"
)

// Series holds the glucose samples currently known to a chart, ordered by
// timestamp. Samples sharing a timestamp keep their insertion order.
//
// Series is not safe for concurrent use; it is owned by the UI goroutine.
type Series struct {
	samples              []Sample
	valueMin, valueMax   float64
	domainMin, domainMax time.Time
}

// Len returns the number of samples in the series.
func (s *Series) Len() int {
	return len(s.samples)
}

// At returns the i'th sample in timestamp order.
func (s *Series) At(i int) Sample {
	return s.samples[i]
}

// Samples returns the backing slice. Callers must not modify it.
func (s *Series) Samples() []Sample {
	return s.samples
}

// Last returns the most recent sample.
func (s *Series) Last() (Sample, bool) {
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	return s.samples[len(s.samples)-1], true
}

// Replace swaps the contents of the series for the provided samples, sorted
// ascending by timestamp. An empty slice leaves the series untouched and
// returns ErrEmptyInputIgnored. A sample without a timestamp or with a NaN or
// infinite value rejects the whole batch with ErrInvalidSample.
func (s *Series) Replace(samples []Sample) error {
	if len(samples) == 0 {
		return ErrEmptyInputIgnored
	}
	for i, sample := range samples {
		if !sample.Valid() {
			return fmt.Errorf("%w: sample %d has no timestamp or a non-finite value", ErrInvalidSample, i)
		}
	}
	sorted := slices.Clone(samples)
	slices.SortStableFunc(sorted, func(a, b Sample) int {
		return a.Time.Compare(b.Time)
	})
	s.samples = sorted
	s.recompute()
	return nil
}

// Append inserts a sample into the series at its timestamp position. Live
// updates may arrive out of order, so the sample is placed after any existing
// samples at or before its timestamp rather than at the end.
func (s *Series) Append(sample Sample) error {
	if !sample.Valid() {
		return fmt.Errorf("%w: missing timestamp or non-finite value", ErrInvalidSample)
	}
	index := sort.Search(len(s.samples), func(i int) bool {
		return s.samples[i].Time.After(sample.Time)
	})
	s.samples = slices.Insert(s.samples, index, sample)
	if len(s.samples) == 1 {
		s.recompute()
		return nil
	}
	s.valueMin = min(s.valueMin, sample.Value)
	s.valueMax = max(s.valueMax, sample.Value)
	s.domainMin = s.samples[0].Time
	s.domainMax = s.samples[len(s.samples)-1].Time
	return nil
}

func (s *Series) recompute() {
	if len(s.samples) == 0 {
		s.valueMin, s.valueMax = 0, 0
		s.domainMin, s.domainMax = time.Time{}, time.Time{}
		return
	}
	s.valueMin = s.samples[0].Value
	s.valueMax = s.samples[0].Value
	for _, sample := range s.samples[1:] {
		s.valueMin = min(s.valueMin, sample.Value)
		s.valueMax = max(s.valueMax, sample.Value)
	}
	s.domainMin = s.samples[0].Time
	s.domainMax = s.samples[len(s.samples)-1].Time
}

// TimeExtent returns the earliest and latest timestamps in the series. If the
// series is empty, ok is false and the times are zero.
func (s *Series) TimeExtent() (start, end time.Time, ok bool) {
	if len(s.samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.domainMin, s.domainMax, true
}

// ValueExtent returns the smallest and largest values in the series. If the
// series is empty, ok is false.
func (s *Series) ValueExtent() (minimum, maximum float64, ok bool) {
	if len(s.samples) == 0 {
		return 0, 0, false
	}
	return s.valueMin, s.valueMax, true
}

// Between returns the samples in the closed interval [start,end]. The result
// aliases the series and must not be modified. If end is before start, the
// two are swapped.
func (s *Series) Between(start, end time.Time) []Sample {
	if end.Before(start) {
		start, end = end, start
	}
	indexA := sort.Search(len(s.samples), func(i int) bool {
		return !s.samples[i].Time.Before(start)
	})
	indexB := sort.Search(len(s.samples), func(i int) bool {
		return s.samples[i].Time.After(end)
	})
	if indexA >= indexB {
		return nil
	}
	return s.samples[indexA:indexB]
}

// Nearest returns the sample whose timestamp is closest to t. Ties resolve to
// the earlier sample.
func (s *Series) Nearest(t time.Time) (Sample, bool) {
	if len(s.samples) == 0 {
		return Sample{}, false
	}
	index := sort.Search(len(s.samples), func(i int) bool {
		return !s.samples[i].Time.Before(t)
	})
	if index == 0 {
		return s.samples[0], true
	}
	if index == len(s.samples) {
		return s.samples[len(s.samples)-1], true
	}
	before := s.samples[index-1]
	after := s.samples[index]
	if cmp.Compare(t.Sub(before.Time), after.Time.Sub(t)) <= 0 {
		return before, true
	}
	return after, true
}
