package cache

import (
	"time"

	"github.com/wyhe/prism/internal/core"
)

// Class is the freshness policy bucket of a cache entry. It is derived from
// the record's own timestamp relative to "now" at read time — never stored —
// so policy changes need no migration of existing entries.
type Class int

const (
	// ClassImmutable covers closed historical ranges: the trading day has
	// ended, the data never changes and is never re-fetched.
	ClassImmutable Class = iota
	// ClassEndOfDay covers data for the current trading day, which keeps
	// moving until the session closes.
	ClassEndOfDay
	// ClassRealtime covers snapshot quotes.
	ClassRealtime
)

// Freshness windows per class.
const (
	TTLRealtime   = 30 * time.Second
	TTLEndOfDay   = 5 * time.Minute
	TTLFinancials = 45 * 24 * time.Hour // quarterly filings move slowly
	TTLNews       = 30 * time.Minute
)

// Classify buckets a record timestamp. Anything dated before the current
// day in the reference timezone is immutable history.
func Classify(recordTime, now time.Time) Class {
	if recordTime.In(core.CST).Before(DayStart(now)) {
		return ClassImmutable
	}
	return ClassEndOfDay
}

// ClassifySpan buckets a whole range: immutable only when the entire range
// closed before the current day.
func ClassifySpan(s Span, now time.Time) Class {
	if !s.End.In(core.CST).After(DayStart(now)) {
		return ClassImmutable
	}
	return ClassEndOfDay
}

// Fresh reports whether an entry fetched at fetchedAt is still usable for
// its class. Immutable entries never expire.
func Fresh(c Class, fetchedAt, now time.Time) bool {
	switch c {
	case ClassImmutable:
		return true
	case ClassEndOfDay:
		return now.Sub(fetchedAt) < TTLEndOfDay
	default:
		return now.Sub(fetchedAt) < TTLRealtime
	}
}

// DayStart returns midnight of t's day in the reference timezone.
func DayStart(t time.Time) time.Time {
	c := t.In(core.CST)
	return time.Date(c.Year(), c.Month(), c.Day(), 0, 0, 0, 0, core.CST)
}
