package display

import (
	"strings"
	"testing"
	"time"

	"github.com/evanschultz/waymark/internal/app"
	"github.com/evanschultz/waymark/internal/domain"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "0s"},
		{999, "0s"},
		{45_000, "45s"},
		{65_000, "1m05s"},
		{599_000, "9m59s"},
		{600_000, "10m"},
		{3_599_000, "59m"},
		{3_600_000, "1h00m"},
		{5_025_000, "1h23m"},
		{35_999_000, "9h59m"},
		{36_000_000, "10h"},
		{100 * 3_600_000, "100h"},
		{-5000, "0s"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.ms); got != tc.want {
			t.Fatalf("FormatDuration(%d) = %q, want %q", tc.ms, got, tc.want)
		}
	}
}

func TestFormatTimeIn(t *testing.T) {
	ms := time.Date(2026, 3, 1, 9, 5, 59, 0, time.UTC).UnixMilli()
	if got := FormatTimeIn(ms, time.UTC); got != "09:05" {
		t.Fatalf("FormatTimeIn() = %q, want 09:05", got)
	}
	tokyo := time.FixedZone("JST", 9*3600)
	if got := FormatTimeIn(ms, tokyo); got != "18:05" {
		t.Fatalf("FormatTimeIn() = %q, want 18:05", got)
	}
	if got := FormatTime(ms); got != FormatTimeIn(ms, time.Local) {
		t.Fatalf("FormatTime() = %q", got)
	}
}

func TestFormatterRelative(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f := Formatter{Location: time.UTC, Relative: true, Now: func() time.Time { return now }}
	got := f.Time(now.Add(-3 * time.Minute).UnixMilli())
	if got != "11:57 (3 minutes ago)" {
		t.Fatalf("Time() = %q", got)
	}
	f.Relative = false
	if got := f.Time(now.UnixMilli()); got != "12:00" {
		t.Fatalf("Time() = %q", got)
	}
	if got := f.Day(now.UnixMilli()); got != "2026-03-01" {
		t.Fatalf("Day() = %q", got)
	}
}

func TestLoadLocation(t *testing.T) {
	for _, name := range []string{"", "Local", " local "} {
		loc, err := LoadLocation(name)
		if err != nil || loc != time.Local {
			t.Fatalf("LoadLocation(%q) = %v, %v", name, loc, err)
		}
	}
	if loc, err := LoadLocation("UTC"); err != nil || loc.String() != "UTC" {
		t.Fatalf("LoadLocation(UTC) = %v, %v", loc, err)
	}
	if _, err := LoadLocation("Mars/Olympus"); err == nil {
		t.Fatal("expected unknown zone error")
	}
}

func TestSequenceReport(t *testing.T) {
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).UnixMilli()
	sum := app.SequenceSummary{
		Sequence: domain.Sequence{ID: 4, Status: domain.SequenceFinished},
		Intervals: []domain.Interval{
			{ID: 1, SequenceID: 4, StartTime: base, StartNodeID: 1, End: domain.ClosedEnd(base+65_000, 2)},
			{ID: 2, SequenceID: 4, StartTime: base + 65_000, StartNodeID: 2, End: domain.ClosedEnd(base+3_665_000, 1)},
		},
		Nodes: map[int64]domain.Node{1: {ID: 1, Name: "Desk"}, 2: {ID: 2, Name: "Kitchen|Hall"}},
		Dwell: []app.NodeDwell{
			{Node: domain.Node{ID: 1, Name: "Desk"}, Duration: 65_000, Visits: 1},
			{Node: domain.Node{ID: 2, Name: "Kitchen|Hall"}, Duration: 3_600_000, Visits: 1},
		},
		StartTime: base,
		EndTime:   base + 3_665_000,
		Total:     3_665_000,
	}
	report := SequenceReport(sum, Formatter{Location: time.UTC})
	for _, want := range []string{
		"# Sequence 4 (finished)",
		"2026-03-01, 09:00 to 10:01, **1h01m** across 2 intervals.",
		`| 1 | Desk | Kitchen\|Hall | 09:00 | 09:01 | 1m05s |`,
		"| Desk | 1 | 1m05s |",
		"1h00m",
	} {
		if !strings.Contains(report, want) {
			t.Fatalf("report missing %q:\n%s", want, report)
		}
	}

	empty := SequenceReport(app.SequenceSummary{Sequence: domain.Sequence{ID: 1, Status: domain.SequenceActive}}, Formatter{})
	if !strings.Contains(empty, "No intervals recorded") {
		t.Fatalf("unexpected empty report %q", empty)
	}
}

func TestMarkdownRenderer(t *testing.T) {
	r := NewMarkdownRenderer("notty")
	if got := r.Render("   ", 80); got != "" {
		t.Fatalf("Render(blank) = %q", got)
	}
	got := r.Render("# Sequence 1\n\nhello waymark", 80)
	if !strings.Contains(got, "hello waymark") {
		t.Fatalf("Render() = %q", got)
	}
	if r.width != 80 {
		t.Fatalf("expected cached width 80, got %d", r.width)
	}
	r.Render("again", 10)
	if r.width != 24 {
		t.Fatalf("expected minimum wrap width 24, got %d", r.width)
	}
}
