// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package shadow

import (
	"math"
	"testing"
)

func TestDiff_IdenticalValues(t *testing.T) {
	tests := []struct {
		name    string
		primary any
	}{
		{"scalars", 42},
		{"strings", "hello"},
		{"nil", nil},
		{"flat map", map[string]any{"a": 1, "b": "two"}},
		{"nested map", map[string]any{"a": map[string]any{"b": []any{1, 2, 3}}}},
		{"sequence", []any{1.0, "x", true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Diff(tt.primary, tt.primary)
			if res.Score != 0 {
				t.Errorf("Score = %v, want 0", res.Score)
			}
			if len(res.Differences) != 0 {
				t.Errorf("Differences = %v, want empty", res.Differences)
			}
			if res.LeavesDiffering != 0 {
				t.Errorf("LeavesDiffering = %d, want 0", res.LeavesDiffering)
			}
		})
	}
}

func TestDiff_PartialDivergence(t *testing.T) {
	primary := map[string]any{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5}
	shadow := map[string]any{"a": 9, "b": 8, "c": 7, "d": 6, "e": 5}

	res := Diff(primary, shadow)

	if res.LeavesCompared != 5 {
		t.Errorf("LeavesCompared = %d, want 5", res.LeavesCompared)
	}
	if res.LeavesDiffering != 4 {
		t.Errorf("LeavesDiffering = %d, want 4", res.LeavesDiffering)
	}
	if math.Abs(res.Score-0.8) > 1e-9 {
		t.Errorf("Score = %v, want 0.8", res.Score)
	}
}

func TestDiff_NumericNormalization(t *testing.T) {
	// ints and floats with the same value must compare equal
	res := Diff(map[string]any{"n": 1}, map[string]any{"n": 1.0})
	if res.Score != 0 {
		t.Errorf("Score = %v, want 0 (1 vs 1.0)", res.Score)
	}

	res = Diff(int64(7), float64(7))
	if res.Score != 0 {
		t.Errorf("Score = %v, want 0 (int64 vs float64)", res.Score)
	}
}

func TestDiff_NestedPath(t *testing.T) {
	primary := map[string]any{
		"report": map[string]any{
			"sources": []any{
				map[string]any{"url": "https://a.example"},
			},
		},
	}
	shadow := map[string]any{
		"report": map[string]any{
			"sources": []any{
				map[string]any{"url": "https://b.example"},
			},
		},
	}

	res := Diff(primary, shadow)

	if len(res.Differences) != 1 {
		t.Fatalf("Differences = %d, want 1", len(res.Differences))
	}
	d := res.Differences[0]
	if d.Path != "report.sources[0].url" {
		t.Errorf("Path = %q, want %q", d.Path, "report.sources[0].url")
	}
	if d.Primary != "https://a.example" || d.Shadow != "https://b.example" {
		t.Errorf("values = (%v, %v)", d.Primary, d.Shadow)
	}
}

func TestDiff_MissingKeys(t *testing.T) {
	primary := map[string]any{"a": 1, "extra": true}
	shadow := map[string]any{"a": 1, "other": "x"}

	res := Diff(primary, shadow)

	if res.LeavesCompared != 3 {
		t.Errorf("LeavesCompared = %d, want 3 (a, extra, other)", res.LeavesCompared)
	}
	if res.LeavesDiffering != 2 {
		t.Errorf("LeavesDiffering = %d, want 2", res.LeavesDiffering)
	}

	// Keys come back sorted: a, extra, other
	if len(res.Differences) != 2 {
		t.Fatalf("Differences = %d, want 2", len(res.Differences))
	}
	if res.Differences[0].Path != "extra" {
		t.Errorf("Differences[0].Path = %q, want %q", res.Differences[0].Path, "extra")
	}
	if res.Differences[0].Shadow != Absent {
		t.Errorf("Differences[0].Shadow = %v, want Absent", res.Differences[0].Shadow)
	}
	if res.Differences[1].Path != "other" {
		t.Errorf("Differences[1].Path = %q, want %q", res.Differences[1].Path, "other")
	}
	if res.Differences[1].Primary != Absent {
		t.Errorf("Differences[1].Primary = %v, want Absent", res.Differences[1].Primary)
	}
}

func TestDiff_SequenceLengthMismatch(t *testing.T) {
	primary := map[string]any{"items": []any{1, 2, 3}}
	shadow := map[string]any{"items": []any{1, 2}}

	res := Diff(primary, shadow)

	// Three positions: [0] equal, [1] equal, [2] trailing on primary.
	if res.LeavesCompared != 3 {
		t.Errorf("LeavesCompared = %d, want 3", res.LeavesCompared)
	}
	if res.LeavesDiffering != 1 {
		t.Errorf("LeavesDiffering = %d, want 1", res.LeavesDiffering)
	}
	if len(res.Differences) != 1 {
		t.Fatalf("Differences = %d, want 1", len(res.Differences))
	}
	if res.Differences[0].Path != "items[2]" {
		t.Errorf("Path = %q, want %q", res.Differences[0].Path, "items[2]")
	}
	if res.Differences[0].Shadow != Absent {
		t.Errorf("Shadow = %v, want Absent", res.Differences[0].Shadow)
	}
}

func TestDiff_RootSequencePaths(t *testing.T) {
	// In-range and trailing indexes of a root-level sequence use the same
	// bare bracket notation.
	res := Diff([]any{1, 2, 3}, []any{9, 2})

	if len(res.Differences) != 2 {
		t.Fatalf("Differences = %d, want 2", len(res.Differences))
	}
	if res.Differences[0].Path != "[0]" {
		t.Errorf("in-range path = %q, want %q", res.Differences[0].Path, "[0]")
	}
	if res.Differences[1].Path != "[2]" {
		t.Errorf("trailing path = %q, want %q", res.Differences[1].Path, "[2]")
	}
	if res.Differences[1].Shadow != Absent {
		t.Errorf("Shadow = %v, want Absent", res.Differences[1].Shadow)
	}
}

func TestDiff_ShapeMismatch(t *testing.T) {
	// A map on one side vs a scalar on the other is one differing leaf.
	res := Diff(map[string]any{"a": map[string]any{"b": 1}}, map[string]any{"a": 5})

	if res.LeavesCompared != 1 {
		t.Errorf("LeavesCompared = %d, want 1", res.LeavesCompared)
	}
	if res.LeavesDiffering != 1 {
		t.Errorf("LeavesDiffering = %d, want 1", res.LeavesDiffering)
	}
}

func TestDiff_TopLevelScalars(t *testing.T) {
	res := Diff("alpha", "beta")

	if res.Score != 1.0 {
		t.Errorf("Score = %v, want 1.0", res.Score)
	}
	if len(res.Differences) != 1 {
		t.Fatalf("Differences = %d, want 1", len(res.Differences))
	}
	if res.Differences[0].Path != "." {
		t.Errorf("Path = %q, want %q", res.Differences[0].Path, ".")
	}
}

func TestDiff_NilVsValue(t *testing.T) {
	res := Diff(map[string]any{"a": nil}, map[string]any{"a": 0})
	if res.LeavesDiffering != 1 {
		t.Errorf("nil vs 0 should differ, got %d differing", res.LeavesDiffering)
	}

	res = Diff(map[string]any{"a": nil}, map[string]any{"a": nil})
	if res.LeavesDiffering != 0 {
		t.Errorf("nil vs nil should match, got %d differing", res.LeavesDiffering)
	}
}

func TestDiff_StructNormalization(t *testing.T) {
	type report struct {
		Title string `json:"title"`
		Pages int    `json:"pages"`
	}

	res := Diff(report{Title: "Q3", Pages: 10}, report{Title: "Q3", Pages: 12})

	if res.LeavesCompared != 2 {
		t.Errorf("LeavesCompared = %d, want 2", res.LeavesCompared)
	}
	if res.LeavesDiffering != 1 {
		t.Errorf("LeavesDiffering = %d, want 1", res.LeavesDiffering)
	}
	if len(res.Differences) != 1 || res.Differences[0].Path != "pages" {
		t.Errorf("Differences = %v, want single difference at 'pages'", res.Differences)
	}
}

func TestDiff_EmptyContainers(t *testing.T) {
	res := Diff(map[string]any{}, map[string]any{})
	if res.Score != 0 || res.LeavesCompared != 0 {
		t.Errorf("empty maps: score %v compared %d, want 0/0", res.Score, res.LeavesCompared)
	}

	res = Diff([]any{}, []any{})
	if res.Score != 0 || res.LeavesCompared != 0 {
		t.Errorf("empty sequences: score %v compared %d, want 0/0", res.Score, res.LeavesCompared)
	}
}

func TestAbsent_Marshal(t *testing.T) {
	if Absent.String() != "<absent>" {
		t.Errorf("String() = %q", Absent.String())
	}
	raw, err := Absent.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON error: %v", err)
	}
	if string(raw) != `"<absent>"` {
		t.Errorf("MarshalJSON = %s", raw)
	}
}
