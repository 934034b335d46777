package domain

import (
	"testing"
	"time"
)

func TestVersionOrdering(t *testing.T) {
	cases := []struct {
		a, b Version
		want int
	}{
		{Version{0, 1}, Version{0, 2}, -1},
		{Version{0, 9}, Version{1, 0}, -1},
		{Version{2, 0}, Version{1, 5}, 1},
		{Version{1, 1}, Version{1, 1}, 0},
	}
	for _, tc := range cases {
		if got := tc.a.Compare(tc.b); got != tc.want {
			t.Fatalf("%s vs %s: expected %d, got %d", tc.a, tc.b, tc.want, got)
		}
	}
}

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("12.3")
	if err != nil || v != (Version{12, 3}) {
		t.Fatalf("unexpected parse result %v %v", v, err)
	}
	for _, bad := range []string{"", "1", "a.b", "1.-1"} {
		if _, err := ParseVersion(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestMetadataInterval(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	md := VersionMetadata{Status: StatusDraft, Version: InitialDraftVersion, StartDate: start}
	if !md.IsCurrent() || !md.Contains(start.Add(24*time.Hour)) {
		t.Fatalf("open interval should contain later timestamps")
	}
	closed := md.Close(start.Add(time.Hour))
	if closed.IsCurrent() || md.EndDate != nil {
		t.Fatalf("close must copy")
	}
	if !closed.Contains(start) || closed.Contains(start.Add(time.Hour)) || closed.Contains(start.Add(-time.Second)) {
		t.Fatalf("closed interval must be [start, end)")
	}
	if closed.Equal(md) || !closed.Equal(closed.Clone()) {
		t.Fatalf("unexpected equality result")
	}
}
