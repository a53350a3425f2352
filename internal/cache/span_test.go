package cache

import (
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func TestMergeSpans(t *testing.T) {
	spans := []Span{
		{day(10), day(12)},
		{day(1), day(3)},
		{day(2), day(5)}, // overlaps first
		{day(5), day(7)}, // adjacent
	}

	merged := mergeSpans(spans)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged spans, got %d: %v", len(merged), merged)
	}
	if !merged[0].Start.Equal(day(1)) || !merged[0].End.Equal(day(7)) {
		t.Errorf("first span = %v", merged[0])
	}
	if !merged[1].Start.Equal(day(10)) || !merged[1].End.Equal(day(12)) {
		t.Errorf("second span = %v", merged[1])
	}
}

func TestSubtractSpans(t *testing.T) {
	req := Span{day(1), day(10)}

	tests := []struct {
		name    string
		covered []Span
		want    []Span
	}{
		{
			name:    "no coverage",
			covered: nil,
			want:    []Span{{day(1), day(10)}},
		},
		{
			name:    "full coverage",
			covered: []Span{{day(1), day(10)}},
			want:    nil,
		},
		{
			name:    "wider coverage",
			covered: []Span{{day(1).AddDate(0, 0, -5), day(15)}},
			want:    nil,
		},
		{
			name:    "gap in the middle",
			covered: []Span{{day(1), day(4)}, {day(6), day(10)}},
			want:    []Span{{day(4), day(6)}},
		},
		{
			name:    "uncovered head and tail",
			covered: []Span{{day(3), day(8)}},
			want:    []Span{{day(1), day(3)}, {day(8), day(10)}},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := subtractSpans(req, tc.covered)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d gaps %v, want %d %v", len(got), got, len(tc.want), tc.want)
			}
			for i := range got {
				if !got[i].Start.Equal(tc.want[i].Start) || !got[i].End.Equal(tc.want[i].End) {
					t.Errorf("gap %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestSpan_Covers(t *testing.T) {
	outer := Span{day(1), day(10)}
	if !outer.Covers(Span{day(2), day(9)}) {
		t.Error("outer should cover inner span")
	}
	if outer.Covers(Span{day(2), day(11)}) {
		t.Error("outer should not cover overhanging span")
	}
}
