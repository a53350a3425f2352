package cache

import (
	"sort"
	"time"
)

// Span is a half-open time interval [Start, End).
type Span struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// IsZero reports whether the span is unset.
func (s Span) IsZero() bool {
	return s.Start.IsZero() && s.End.IsZero()
}

// Contains reports whether t falls inside the span.
func (s Span) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// Covers reports whether other lies fully inside the span.
func (s Span) Covers(other Span) bool {
	return !other.Start.Before(s.Start) && !other.End.After(s.End)
}

// mergeSpans coalesces overlapping and adjacent spans into a sorted,
// disjoint set.
func mergeSpans(spans []Span) []Span {
	if len(spans) <= 1 {
		return spans
	}
	sorted := make([]Span, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := []Span{sorted[0]}
	for _, s := range sorted[1:] {
		last := &out[len(out)-1]
		if !s.Start.After(last.End) {
			if s.End.After(last.End) {
				last.End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// subtractSpans returns the parts of req not covered by the (sorted,
// disjoint) covered set — the gaps a fetch still has to fill.
func subtractSpans(req Span, covered []Span) []Span {
	var gaps []Span
	cursor := req.Start

	for _, c := range covered {
		if !c.End.After(cursor) {
			continue
		}
		if !c.Start.Before(req.End) {
			break
		}
		if c.Start.After(cursor) {
			gaps = append(gaps, Span{Start: cursor, End: minTime(c.Start, req.End)})
		}
		if c.End.After(cursor) {
			cursor = c.End
		}
	}

	if cursor.Before(req.End) {
		gaps = append(gaps, Span{Start: cursor, End: req.End})
	}
	return gaps
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
