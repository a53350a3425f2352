package provider

import (
	"context"
	"testing"
	"time"

	"github.com/wyhe/prism/internal/core"
)

// mockAdapter for testing
type mockAdapter struct {
	id string
}

func (m *mockAdapter) ID() string                   { return m.id }
func (m *mockAdapter) Markets() []core.Market       { return []core.Market{core.MarketUS} }
func (m *mockAdapter) Capabilities() []core.DataKind {
	return []core.DataKind{core.KindDaily}
}
func (m *mockAdapter) DailyQuotes(ctx context.Context, symbol string, start, end time.Time) (*RawPayload, error) {
	return &RawPayload{Provider: m.id, Kind: core.KindDaily}, nil
}
func (m *mockAdapter) MinuteQuotes(ctx context.Context, symbol string, start, end time.Time, interval string) (*RawPayload, error) {
	return nil, Unsupported(m.id, core.KindMinute)
}
func (m *mockAdapter) RealtimeQuote(ctx context.Context, symbol string) (*RawPayload, error) {
	return nil, Unsupported(m.id, core.KindRealtime)
}
func (m *mockAdapter) Financials(ctx context.Context, symbol string, rt core.ReportType) (*RawPayload, error) {
	return nil, Unsupported(m.id, core.KindFinancials)
}
func (m *mockAdapter) News(ctx context.Context, symbol string, since time.Time) (*RawPayload, error) {
	return nil, Unsupported(m.id, core.KindNews)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	mock := &mockAdapter{id: "mock"}
	if err := r.Register(mock); err != nil {
		t.Fatalf("register: %v", err)
	}

	a, ok := r.Get("mock")
	if !ok {
		t.Fatal("expected to find registered adapter")
	}
	if a.ID() != "mock" {
		t.Errorf("expected id 'mock', got '%s'", a.ID())
	}
}

func TestRegistry_RegisterRejectsDuplicates(t *testing.T) {
	r := NewRegistry()

	first := &mockAdapter{id: "mock"}
	if err := r.Register(first); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&mockAdapter{id: "mock"}); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
	if err := r.Register(&mockAdapter{id: ""}); err == nil {
		t.Fatal("expected blank id to be rejected")
	}

	// The original registration survives the rejected one.
	a, ok := r.Get("mock")
	if !ok || a != Adapter(first) {
		t.Error("duplicate register must not replace the original adapter")
	}
}

func TestRegistry_GetAllSortedByID(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&mockAdapter{id: "b"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(&mockAdapter{id: "a"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	all := r.GetAll()
	if len(all) != 2 {
		t.Fatalf("expected 2 adapters, got %d", len(all))
	}
	if all[0].ID() != "a" || all[1].ID() != "b" {
		t.Errorf("expected sorted ids [a b], got [%s %s]", all[0].ID(), all[1].ID())
	}
}

func TestDescriptor_Supports(t *testing.T) {
	d := Descriptor{
		ID:           "mock",
		Markets:      []core.Market{core.MarketA, core.MarketHK},
		Capabilities: []core.DataKind{core.KindDaily, core.KindRealtime},
	}

	if !d.Supports(core.MarketA, core.KindDaily) {
		t.Error("expected support for A/daily")
	}
	if d.Supports(core.MarketUS, core.KindDaily) {
		t.Error("did not expect support for US")
	}
	if d.Supports(core.MarketA, core.KindNews) {
		t.Error("did not expect support for news")
	}
}

func TestRawPayload_Empty(t *testing.T) {
	var p *RawPayload
	if !p.Empty() {
		t.Error("nil payload should be empty")
	}
	p = &RawPayload{Provider: "mock", Kind: core.KindDaily}
	if !p.Empty() {
		t.Error("payload without rows should be empty")
	}
	p.Rows = []Row{{"close": "1"}}
	if p.Empty() {
		t.Error("payload with rows should not be empty")
	}
}
