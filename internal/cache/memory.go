package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wyhe/prism/internal/core"
)

// Memory is the in-process Store. Suitable for single-node deployments and
// tests; the redis backend covers shared deployments.
type Memory struct {
	mu       sync.RWMutex
	quotes   map[string]*quoteSeries
	realtime map[string]core.QuoteRecord
	fins     map[string]FinancialEntry
	news     map[string]NewsEntry
}

type quoteSeries struct {
	records map[int64]core.QuoteRecord // keyed by unix nanos of the bar time
	closed  []Span                     // permanent coverage of closed history
	open    []coverage                 // fetch-day coverage, expires end-of-day
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		quotes:   make(map[string]*quoteSeries),
		realtime: make(map[string]core.QuoteRecord),
		fins:     make(map[string]FinancialEntry),
		news:     make(map[string]NewsEntry),
	}
}

func seriesKey(symbol string, kind core.DataKind, period string) string {
	return fmt.Sprintf("%s|%s|%s", symbol, kind, period)
}

func finKey(symbol string, rt core.ReportType) string {
	return fmt.Sprintf("%s|%s", symbol, rt)
}

// QuoteRange implements Store.
func (m *Memory) QuoteRange(ctx context.Context, symbol string, kind core.DataKind, period string, span Span, now time.Time) ([]core.QuoteRecord, []Span, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.quotes[seriesKey(symbol, kind, period)]
	if !ok {
		return nil, []Span{span}, nil
	}

	var recs []core.QuoteRecord
	for _, rec := range s.records {
		if span.Contains(rec.Time) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Time.Before(recs[j].Time) })

	return recs, subtractSpans(span, validCoverage(s.closed, s.open, now)), nil
}

// UpsertQuotes implements Store. The upsert is atomic as a whole: readers
// never observe a partially written range.
func (m *Memory) UpsertQuotes(ctx context.Context, symbol string, kind core.DataKind, period string, span Span, fetchedAt time.Time, recs []core.QuoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := seriesKey(symbol, kind, period)
	s, ok := m.quotes[key]
	if !ok {
		s = &quoteSeries{records: make(map[int64]core.QuoteRecord)}
		m.quotes[key] = s
	}

	for _, rec := range recs {
		k := rec.Time.UnixNano()
		if old, exists := s.records[k]; exists && old.FetchedAt.After(rec.FetchedAt) {
			continue // last write wins, keyed by fetched_at
		}
		s.records[k] = rec
	}
	if !span.IsZero() {
		closedPart, openPart := splitCoverage(span, fetchedAt)
		if !closedPart.IsZero() {
			s.closed = mergeSpans(append(s.closed, closedPart))
		}
		s.open = pruneCoverage(s.open, fetchedAt)
		if !openPart.IsZero() {
			s.open = append(s.open, coverage{Span: openPart, FetchedAt: fetchedAt})
		}
	}
	return nil
}

// Realtime implements Store.
func (m *Memory) Realtime(ctx context.Context, symbol string) (*core.QuoteRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.realtime[symbol]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

// UpsertRealtime implements Store.
func (m *Memory) UpsertRealtime(ctx context.Context, symbol string, rec core.QuoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.realtime[symbol]; ok && old.FetchedAt.After(rec.FetchedAt) {
		return nil
	}
	m.realtime[symbol] = rec
	return nil
}

// Financials implements Store.
func (m *Memory) Financials(ctx context.Context, symbol string, rt core.ReportType) (*FinancialEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.fins[finKey(symbol, rt)]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

// UpsertFinancials implements Store.
func (m *Memory) UpsertFinancials(ctx context.Context, symbol string, rt core.ReportType, entry FinancialEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := finKey(symbol, rt)
	if old, ok := m.fins[key]; ok && old.FetchedAt.After(entry.FetchedAt) {
		return nil
	}
	m.fins[key] = entry
	return nil
}

// News implements Store.
func (m *Memory) News(ctx context.Context, symbol string) (*NewsEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.news[symbol]
	if !ok {
		return nil, false, nil
	}
	return &entry, true, nil
}

// UpsertNews implements Store.
func (m *Memory) UpsertNews(ctx context.Context, symbol string, entry NewsEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.news[symbol]; ok && old.FetchedAt.After(entry.FetchedAt) {
		return nil
	}
	m.news[symbol] = entry
	return nil
}
