package cache

import "time"

// coverage is a covered span whose trust decays. History that was already
// closed when it was fetched is covered forever, but a span touching the
// fetch day only counts while the end-of-day window holds: the session is
// still moving, and an authoritative "no data" for today must not survive
// the day rollover as permanent coverage.
type coverage struct {
	Span      Span      `json:"span"`
	FetchedAt time.Time `json:"fetched_at"`
}

// splitCoverage divides a freshly fetched span at the trading-day boundary
// of its fetch time: the part before the boundary is permanent, the rest
// expires with the end-of-day window.
func splitCoverage(span Span, fetchedAt time.Time) (closed, open Span) {
	boundary := DayStart(fetchedAt)
	if span.Start.Before(boundary) {
		closed = Span{Start: span.Start, End: minTime(span.End, boundary)}
	}
	if span.End.After(boundary) {
		open = Span{Start: maxTime(span.Start, boundary), End: span.End}
	}
	return closed, open
}

// validCoverage returns the merged spans that may still be trusted at now.
func validCoverage(closed []Span, open []coverage, now time.Time) []Span {
	spans := make([]Span, 0, len(closed)+len(open))
	spans = append(spans, closed...)
	for _, c := range open {
		if Fresh(ClassEndOfDay, c.FetchedAt, now) {
			spans = append(spans, c.Span)
		}
	}
	return mergeSpans(spans)
}

// pruneCoverage drops open entries whose window has lapsed.
func pruneCoverage(open []coverage, now time.Time) []coverage {
	kept := open[:0]
	for _, c := range open {
		if Fresh(ClassEndOfDay, c.FetchedAt, now) {
			kept = append(kept, c)
		}
	}
	return kept
}
