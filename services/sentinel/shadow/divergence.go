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
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// -----------------------------------------------------------------------------
// Absent Sentinel
// -----------------------------------------------------------------------------

// absentValue marks a position present on only one side of a comparison.
type absentValue struct{}

// Absent is reported as the value of the side on which a key or trailing
// sequence element does not exist. It is distinct from an explicit null.
var Absent = absentValue{}

// String returns the printable form of the sentinel.
func (absentValue) String() string { return "<absent>" }

// MarshalJSON encodes the sentinel as the string "<absent>".
func (absentValue) MarshalJSON() ([]byte, error) { return []byte(`"<absent>"`), nil }

// -----------------------------------------------------------------------------
// Diff Types
// -----------------------------------------------------------------------------

// Difference describes one differing leaf position between primary and shadow.
type Difference struct {
	// Path locates the leaf in dot/bracket notation, e.g. "sources[2].url".
	Path string `json:"path"`

	// Primary is the primary-side value at the path. Absent if the path
	// exists only on the shadow side.
	Primary any `json:"primary"`

	// Shadow is the shadow-side value at the path. Absent if the path
	// exists only on the primary side.
	Shadow any `json:"shadow"`
}

// DiffResult holds the outcome of a structural comparison.
type DiffResult struct {
	// Differences lists every differing leaf in deterministic order
	// (map keys sorted, sequence indices ascending).
	Differences []Difference `json:"differences"`

	// Score is the normalized divergence: differing leaves over total
	// leaves compared, in [0,1]. Zero when no leaves were compared.
	Score float64 `json:"score"`

	// LeavesCompared is the total number of terminal positions visited.
	LeavesCompared int `json:"leaves_compared"`

	// LeavesDiffering is the number of terminal positions that differ.
	LeavesDiffering int `json:"leaves_differing"`
}

// -----------------------------------------------------------------------------
// Diff
// -----------------------------------------------------------------------------

// Diff structurally compares two arbitrary nested values.
//
// Description:
//
//	Walks both values in lock-step. Scalars (numbers, strings, booleans,
//	null) are compared by value; sequences index-wise with one difference
//	per extra or missing trailing element; mappings over the union of keys,
//	a one-sided key counting as a single differing leaf. The divergence
//	score is the fraction of compared leaves that differ.
//
//	Inputs that are not already map/slice/scalar shapes (structs, typed
//	maps, typed slices) are normalized through a JSON round-trip first, so
//	any JSON-representable value can be compared. Numbers on both sides are
//	normalized to float64, making 1 and 1.0 equal.
//
// Inputs:
//   - primary: The production-side value.
//   - shadow: The shadow-side value.
//
// Outputs:
//   - DiffResult: Differences, leaf counts, and the divergence score.
//
// Thread Safety: Pure function; safe for concurrent use.
func Diff(primary, shadow any) DiffResult {
	var res DiffResult
	walk("", normalize(primary), normalize(shadow), &res)
	if res.LeavesCompared > 0 {
		res.Score = float64(res.LeavesDiffering) / float64(res.LeavesCompared)
	}
	if res.Differences == nil {
		res.Differences = []Difference{}
	}
	return res
}

// walk recursively compares normalized values, accumulating into res.
func walk(path string, a, b any, res *DiffResult) {
	am, aIsMap := a.(map[string]any)
	bm, bIsMap := b.(map[string]any)
	as, aIsSeq := a.([]any)
	bs, bIsSeq := b.([]any)

	switch {
	case aIsMap && bIsMap:
		walkMaps(path, am, bm, res)
	case aIsSeq && bIsSeq:
		walkSequences(path, as, bs, res)
	default:
		// Scalar vs scalar, or a shape mismatch: a single terminal position.
		res.LeavesCompared++
		if aIsMap || bIsMap || aIsSeq || bIsSeq || !scalarEqual(a, b) {
			res.LeavesDiffering++
			res.Differences = append(res.Differences, Difference{
				Path:    rootedPath(path),
				Primary: a,
				Shadow:  b,
			})
		}
	}
}

// walkMaps compares two mappings over the union of their keys.
func walkMaps(path string, a, b map[string]any, res *DiffResult) {
	keys := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys = append(keys, k)
		seen[k] = struct{}{}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		childPath := k
		if path != "" {
			childPath = path + "." + k
		}
		av, aOK := a[k]
		bv, bOK := b[k]
		switch {
		case aOK && bOK:
			walk(childPath, av, bv, res)
		case aOK:
			res.LeavesCompared++
			res.LeavesDiffering++
			res.Differences = append(res.Differences, Difference{
				Path:    childPath,
				Primary: av,
				Shadow:  Absent,
			})
		default:
			res.LeavesCompared++
			res.LeavesDiffering++
			res.Differences = append(res.Differences, Difference{
				Path:    childPath,
				Primary: Absent,
				Shadow:  bv,
			})
		}
	}
}

// walkSequences compares two sequences index-wise, then accounts for any
// length mismatch as one difference per trailing element.
func walkSequences(path string, a, b []any, res *DiffResult) {
	shorter := len(a)
	if len(b) < shorter {
		shorter = len(b)
	}

	for i := 0; i < shorter; i++ {
		walk(path+"["+strconv.Itoa(i)+"]", a[i], b[i], res)
	}

	for i := shorter; i < len(a); i++ {
		res.LeavesCompared++
		res.LeavesDiffering++
		res.Differences = append(res.Differences, Difference{
			Path:    path + "[" + strconv.Itoa(i) + "]",
			Primary: a[i],
			Shadow:  Absent,
		})
	}
	for i := shorter; i < len(b); i++ {
		res.LeavesCompared++
		res.LeavesDiffering++
		res.Differences = append(res.Differences, Difference{
			Path:    path + "[" + strconv.Itoa(i) + "]",
			Primary: Absent,
			Shadow:  b[i],
		})
	}
}

// rootedPath maps the empty root path to "." so top-level scalar
// differences still carry a well-formed location.
func rootedPath(path string) string {
	if path == "" {
		return "."
	}
	return path
}

// scalarEqual compares two normalized scalar values.
func scalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	default:
		// Unrecognized scalar kinds fall back to string comparison.
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
	}
}

// normalize reduces a value to the map/slice/scalar shapes walk operates on.
func normalize(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return normalizeJSON(v)
	}
}

// normalizeJSON reduces arbitrary Go values (structs, typed maps, typed
// slices) via a JSON round-trip. Values that cannot be marshaled become
// their fmt representation, keeping Diff total.
func normalizeJSON(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprintf("%v", v)
	}
	return out
}
