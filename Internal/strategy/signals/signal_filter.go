package signals

import (
	"sort"

	"github.com/fazecat/benfordscan/Internal/types"
)

// noPreviousSignal sits far enough before index 0 that the first candidate
// always passes the gap check.
const noPreviousSignal = -100

// Dedupe keeps at most one event per minGap days. Candidates are scanned in
// ascending index order and compared against the last accepted one.
func Dedupe(events []types.SignalEvent, minGap int) []types.SignalEvent {
	sorted := make([]types.SignalEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Index < sorted[b].Index
	})

	last := noPreviousSignal
	if minGap > -noPreviousSignal {
		last = -minGap
	}

	kept := make([]types.SignalEvent, 0, len(sorted))
	for _, ev := range sorted {
		if ev.Index-last < minGap {
			continue
		}
		kept = append(kept, ev)
		last = ev.Index
	}
	return kept
}
