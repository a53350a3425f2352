package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wyhe/prism/internal/core"
)

// Redis is the shared-deployment Store, keeping normalized records as JSON
// documents. Quote series are read-modify-write under a per-process lock;
// cross-process writers are still safe because upserts are full-document
// and last-write-wins by fetched_at.
type Redis struct {
	client *redis.Client
	prefix string

	mu sync.Mutex // serializes series read-modify-write cycles
}

// NewRedis creates a redis-backed store.
func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "prism"
	}
	return &Redis{client: client, prefix: prefix}
}

type redisSeries struct {
	Records map[int64]core.QuoteRecord `json:"records"`
	Closed  []Span                     `json:"closed"`
	Open    []coverage                 `json:"open"`
}

func (r *Redis) seriesRedisKey(symbol string, kind core.DataKind, period string) string {
	return fmt.Sprintf("%s:quotes:%s:%s:%s", r.prefix, symbol, kind, period)
}

func (r *Redis) loadSeries(ctx context.Context, key string) (*redisSeries, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return &redisSeries{Records: make(map[int64]core.QuoteRecord)}, nil
	}
	if err != nil {
		return nil, core.WrapError(core.ErrCacheFailed, err)
	}
	var s redisSeries
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, core.WrapError(core.ErrCacheFailed, err)
	}
	if s.Records == nil {
		s.Records = make(map[int64]core.QuoteRecord)
	}
	return &s, nil
}

// QuoteRange implements Store.
func (r *Redis) QuoteRange(ctx context.Context, symbol string, kind core.DataKind, period string, span Span, now time.Time) ([]core.QuoteRecord, []Span, error) {
	s, err := r.loadSeries(ctx, r.seriesRedisKey(symbol, kind, period))
	if err != nil {
		return nil, nil, err
	}

	var recs []core.QuoteRecord
	for _, rec := range s.Records {
		if span.Contains(rec.Time) {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Time.Before(recs[j].Time) })

	return recs, subtractSpans(span, validCoverage(s.Closed, s.Open, now)), nil
}

// UpsertQuotes implements Store.
func (r *Redis) UpsertQuotes(ctx context.Context, symbol string, kind core.DataKind, period string, span Span, fetchedAt time.Time, recs []core.QuoteRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.seriesRedisKey(symbol, kind, period)
	s, err := r.loadSeries(ctx, key)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		k := rec.Time.UnixNano()
		if old, exists := s.Records[k]; exists && old.FetchedAt.After(rec.FetchedAt) {
			continue
		}
		s.Records[k] = rec
	}
	if !span.IsZero() {
		closedPart, openPart := splitCoverage(span, fetchedAt)
		if !closedPart.IsZero() {
			s.Closed = mergeSpans(append(s.Closed, closedPart))
		}
		s.Open = pruneCoverage(s.Open, fetchedAt)
		if !openPart.IsZero() {
			s.Open = append(s.Open, coverage{Span: openPart, FetchedAt: fetchedAt})
		}
	}

	raw, err := json.Marshal(s)
	if err != nil {
		return core.WrapError(core.ErrCacheFailed, err)
	}
	if err := r.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return core.WrapError(core.ErrCacheFailed, err)
	}
	return nil
}

// Realtime implements Store.
func (r *Redis) Realtime(ctx context.Context, symbol string) (*core.QuoteRecord, bool, error) {
	raw, err := r.client.Get(ctx, fmt.Sprintf("%s:rt:%s", r.prefix, symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, core.WrapError(core.ErrCacheFailed, err)
	}
	var rec core.QuoteRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, core.WrapError(core.ErrCacheFailed, err)
	}
	return &rec, true, nil
}

// UpsertRealtime implements Store. The key expires well past its TTL class
// so redis cleans up idle symbols on its own.
func (r *Redis) UpsertRealtime(ctx context.Context, symbol string, rec core.QuoteRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return core.WrapError(core.ErrCacheFailed, err)
	}
	key := fmt.Sprintf("%s:rt:%s", r.prefix, symbol)
	if err := r.client.Set(ctx, key, raw, 4*TTLRealtime).Err(); err != nil {
		return core.WrapError(core.ErrCacheFailed, err)
	}
	return nil
}

// Financials implements Store.
func (r *Redis) Financials(ctx context.Context, symbol string, rt core.ReportType) (*FinancialEntry, bool, error) {
	var entry FinancialEntry
	ok, err := r.getJSON(ctx, fmt.Sprintf("%s:fin:%s:%s", r.prefix, symbol, rt), &entry)
	if err != nil || !ok {
		return nil, false, err
	}
	return &entry, true, nil
}

// UpsertFinancials implements Store.
func (r *Redis) UpsertFinancials(ctx context.Context, symbol string, rt core.ReportType, entry FinancialEntry) error {
	return r.setJSON(ctx, fmt.Sprintf("%s:fin:%s:%s", r.prefix, symbol, rt), entry, 2*TTLFinancials)
}

// News implements Store.
func (r *Redis) News(ctx context.Context, symbol string) (*NewsEntry, bool, error) {
	var entry NewsEntry
	ok, err := r.getJSON(ctx, fmt.Sprintf("%s:news:%s", r.prefix, symbol), &entry)
	if err != nil || !ok {
		return nil, false, err
	}
	return &entry, true, nil
}

// UpsertNews implements Store.
func (r *Redis) UpsertNews(ctx context.Context, symbol string, entry NewsEntry) error {
	return r.setJSON(ctx, fmt.Sprintf("%s:news:%s", r.prefix, symbol), entry, 2*TTLNews)
}

func (r *Redis) getJSON(ctx context.Context, key string, v any) (bool, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, core.WrapError(core.ErrCacheFailed, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, core.WrapError(core.ErrCacheFailed, err)
	}
	return true, nil
}

func (r *Redis) setJSON(ctx context.Context, key string, v any, expiry time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return core.WrapError(core.ErrCacheFailed, err)
	}
	if err := r.client.Set(ctx, key, raw, expiry).Err(); err != nil {
		return core.WrapError(core.ErrCacheFailed, err)
	}
	return nil
}
