package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/wyhe/prism/internal/core"
)

// Archiver lays out archived quote history on a Storage backend. One object
// per symbol, period and year: quotes/600519.SH/daily/2024.json. Writes
// merge with the existing object so partial ranges accumulate.
type Archiver struct {
	storage Storage
	logger  *zap.Logger

	// Serializes the read-merge-write cycle per process. Cross-process
	// merges race, which is acceptable: objects hold immutable history, so
	// both writers carry the same bars for any overlap.
	mu sync.Mutex
}

// New creates an Archiver on the given backend.
func New(storage Storage, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{storage: storage, logger: logger}
}

func objectPath(symbol, period string, year int) string {
	return fmt.Sprintf("quotes/%s/%s/%d.json", symbol, period, year)
}

// ArchiveQuotes merges the records into their per-year archive objects.
func (a *Archiver) ArchiveQuotes(ctx context.Context, symbol, period string, recs []core.QuoteRecord) error {
	if len(recs) == 0 {
		return nil
	}

	byYear := make(map[int][]core.QuoteRecord)
	for _, rec := range recs {
		year := rec.Time.In(core.CST).Year()
		byYear[year] = append(byYear[year], rec)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	for year, batch := range byYear {
		if err := a.mergeYear(ctx, symbol, period, year, batch); err != nil {
			return err
		}
	}
	return nil
}

func (a *Archiver) mergeYear(ctx context.Context, symbol, period string, year int, batch []core.QuoteRecord) error {
	path := objectPath(symbol, period, year)

	existing, err := a.readObject(ctx, path)
	if err != nil {
		return err
	}

	merged := make(map[int64]core.QuoteRecord, len(existing)+len(batch))
	for _, rec := range existing {
		merged[rec.Time.UnixNano()] = rec
	}
	for _, rec := range batch {
		merged[rec.Time.UnixNano()] = rec
	}

	out := make([]core.QuoteRecord, 0, len(merged))
	for _, rec := range merged {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	a.logger.Debug("archiving quotes",
		zap.String("path", path),
		zap.Int("records", len(out)))
	return a.storage.Write(ctx, path, data)
}

func (a *Archiver) readObject(ctx context.Context, path string) ([]core.QuoteRecord, error) {
	ok, err := a.storage.Exists(ctx, path)
	if err != nil || !ok {
		return nil, err
	}
	data, err := a.storage.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	var recs []core.QuoteRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		// A corrupt object gets rebuilt from scratch rather than blocking
		// new history.
		a.logger.Warn("corrupt archive object, rewriting", zap.String("path", path), zap.Error(err))
		return nil, nil
	}
	return recs, nil
}

// ReadQuotes returns all archived records for the symbol, period and year.
func (a *Archiver) ReadQuotes(ctx context.Context, symbol, period string, year int) ([]core.QuoteRecord, error) {
	return a.readObject(ctx, objectPath(symbol, period, year))
}
