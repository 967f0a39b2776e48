// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metrics

// ledger is a bounded append-only sequence with FIFO eviction.
//
// # Description
//
// Holds the most recent entries up to a fixed cap; appending beyond the cap
// evicts the oldest entries first. Supports purging by predicate for
// age-based retention.
//
// # Thread Safety
//
// NOT safe for concurrent use; the Recorder synchronizes access.
type ledger[T any] struct {
	entries []T
	cap     int
}

// newLedger creates a ledger with the given capacity.
func newLedger[T any](capacity int) *ledger[T] {
	if capacity <= 0 {
		capacity = DefaultMaxLedgerSize
	}
	return &ledger[T]{
		entries: make([]T, 0, capacity),
		cap:     capacity,
	}
}

// append adds an entry, evicting the oldest when the cap is exceeded.
func (l *ledger[T]) append(entry T) {
	if len(l.entries) >= l.cap {
		overflow := len(l.entries) - l.cap + 1
		// Shift in place so the backing array does not pin evicted entries.
		n := copy(l.entries, l.entries[overflow:])
		l.entries = l.entries[:n]
	}
	l.entries = append(l.entries, entry)
}

// purge drops every entry for which keep returns false, preserving order.
// Returns the number of entries removed.
func (l *ledger[T]) purge(keep func(T) bool) int {
	kept := l.entries[:0]
	for _, e := range l.entries {
		if keep(e) {
			kept = append(kept, e)
		}
	}
	removed := len(l.entries) - len(kept)
	// Clear the tail so removed entries are collectable.
	var zero T
	for i := len(kept); i < len(l.entries); i++ {
		l.entries[i] = zero
	}
	l.entries = kept
	return removed
}

// snapshot returns a copy of all entries, oldest first.
func (l *ledger[T]) snapshot() []T {
	out := make([]T, len(l.entries))
	copy(out, l.entries)
	return out
}

// len returns the current number of entries.
func (l *ledger[T]) len() int {
	return len(l.entries)
}
