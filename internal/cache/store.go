// Package cache provides the keyed, TTL-aware store of normalized records
// between the data source manager and its backing storage. Implementations
// must make every upsert atomic for its key and last-write-wins by
// fetched_at; partially overwritten records are never observable.
package cache

import (
	"context"
	"time"

	"github.com/wyhe/prism/internal/core"
)

// FinancialEntry is a cached set of financial statements for one symbol and
// report type.
type FinancialEntry struct {
	Records   []core.FinancialRecord `json:"records"`
	FetchedAt time.Time              `json:"fetched_at"`
}

// NewsEntry is a cached news window for one symbol. Since records the oldest
// publication time the entry covers.
type NewsEntry struct {
	Since     time.Time         `json:"since"`
	Records   []core.NewsRecord `json:"records"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// Store is the cache contract the manager depends on. Backing storage is
// pluggable: anything offering keyed upsert and range semantics fits.
type Store interface {
	// QuoteRange returns the cached records inside the span plus the
	// uncovered sub-ranges that still need a provider fetch as of now.
	// Coverage of the current trading day lapses with the end-of-day
	// window, so a span that was fully covered earlier may come back with
	// today re-opened as a gap.
	QuoteRange(ctx context.Context, symbol string, kind core.DataKind, period string, span Span, now time.Time) ([]core.QuoteRecord, []Span, error)

	// UpsertQuotes stores the records and marks the whole span as covered,
	// so gap computation does not mistake non-trading days for misses.
	// The portion of the span closed before fetchedAt's trading day is
	// covered permanently; the rest only until the end-of-day window
	// lapses. Records with an older fetched_at than the cached one are
	// ignored.
	UpsertQuotes(ctx context.Context, symbol string, kind core.DataKind, period string, span Span, fetchedAt time.Time, recs []core.QuoteRecord) error

	// Realtime returns the cached snapshot for the symbol, if any.
	Realtime(ctx context.Context, symbol string) (*core.QuoteRecord, bool, error)
	UpsertRealtime(ctx context.Context, symbol string, rec core.QuoteRecord) error

	Financials(ctx context.Context, symbol string, rt core.ReportType) (*FinancialEntry, bool, error)
	UpsertFinancials(ctx context.Context, symbol string, rt core.ReportType, entry FinancialEntry) error

	News(ctx context.Context, symbol string) (*NewsEntry, bool, error)
	UpsertNews(ctx context.Context, symbol string, entry NewsEntry) error
}
