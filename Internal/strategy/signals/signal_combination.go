package signals

import (
	"sort"

	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
)

// Fuse merges per-detector signal days into COMBINED events. Every evaluable
// day on which some detector fired is a candidate, in ascending order. A
// candidate qualifies when at least cfg.MinDetectors detectors fired within
// cfg.ToleranceDays of it, counting each detector's first match only. A
// qualifying day claims itself and the detector days supporting it; claimed
// days are never emitted again, so one cluster yields one event.
func Fuse(days map[types.SignalKind][]int, seriesLen int, cfg config.SignalConfig) []types.SignalEvent {
	start, end := cfg.WarmupDays, seriesLen-cfg.LookaheadDays
	minDetectors := cfg.MinDetectors
	if minDetectors < 2 {
		minDetectors = 2
	}

	candidates := candidateDays(days, start, end)
	claimed := make(map[int]bool)
	var events []types.SignalEvent
	for _, i := range candidates {
		if claimed[i] {
			continue
		}
		var supporting []types.SignalKind
		var matched []int
		for _, kind := range types.DetectorKinds {
			if d, ok := firstMatch(days[kind], i, cfg.ToleranceDays); ok {
				supporting = append(supporting, kind)
				matched = append(matched, d)
			}
		}
		if len(supporting) < minDetectors {
			continue
		}
		claimed[i] = true
		for _, d := range matched {
			claimed[d] = true
		}
		events = append(events, types.SignalEvent{
			Index:      i,
			Kind:       types.SignalCombined,
			Supporting: supporting,
		})
	}
	return events
}

func candidateDays(days map[types.SignalKind][]int, start, end int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, kind := range types.DetectorKinds {
		for _, d := range days[kind] {
			if d < start || d >= end || seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Ints(out)
	return out
}

func firstMatch(days []int, i, tolerance int) (int, bool) {
	for _, d := range days {
		diff := d - i
		if diff < 0 {
			diff = -diff
		}
		if diff <= tolerance {
			return d, true
		}
	}
	return 0, false
}

// Events wraps raw detector days as single-kind events.
func Events(kind types.SignalKind, days []int) []types.SignalEvent {
	events := make([]types.SignalEvent, 0, len(days))
	for _, d := range days {
		events = append(events, types.SignalEvent{Index: d, Kind: kind})
	}
	return events
}

// Detect turns raw detector days into the event list for one kind. COMBINED
// fuses all detectors; the rest wrap their own days.
func Detect(kind types.SignalKind, days map[types.SignalKind][]int, seriesLen int, cfg config.SignalConfig) []types.SignalEvent {
	if kind == types.SignalCombined {
		return Fuse(days, seriesLen, cfg)
	}
	return Events(kind, days[kind])
}
