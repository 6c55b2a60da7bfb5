package signals

import (
	"reflect"
	"testing"

	"github.com/fazecat/benfordscan/Internal/types"
	"github.com/fazecat/benfordscan/Internal/utils/config"
)

func testSignalConfig() config.SignalConfig {
	return config.Default().Signals
}

func TestFuse_TwoDetectorsInsideTolerance(t *testing.T) {
	days := map[types.SignalKind][]int{
		types.SignalVPD:     {100},
		types.SignalBenford: {103},
	}

	events := Fuse(days, 200, testSignalConfig())

	if len(events) != 1 {
		t.Fatalf("Fuse should emit exactly one event for one cluster, got %d: %+v", len(events), events)
	}
	if events[0].Index != 100 {
		t.Errorf("Combined event should sit on day 100, got %d", events[0].Index)
	}
	if events[0].Kind != types.SignalCombined {
		t.Errorf("Kind should be COMBINED, got %s", events[0].Kind)
	}
	want := []types.SignalKind{types.SignalVPD, types.SignalBenford}
	if !reflect.DeepEqual(events[0].Supporting, want) {
		t.Errorf("Supporting kinds should be %v, got %v", want, events[0].Supporting)
	}
}

func TestFuse_OutsideToleranceDoesNotCombine(t *testing.T) {
	days := map[types.SignalKind][]int{
		types.SignalVPD:     {100},
		types.SignalBenford: {106},
	}

	if events := Fuse(days, 200, testSignalConfig()); len(events) != 0 {
		t.Errorf("Days 6 apart should not combine with tolerance 5, got %+v", events)
	}
}

// Only days on which a detector fired are candidates, so two firings up to
// 2×tolerance apart never meet on a quiet day between them.
func TestFuse_NoEventOnQuietMidpoint(t *testing.T) {
	days := map[types.SignalKind][]int{
		types.SignalVPD:     {100},
		types.SignalBenford: {110},
	}

	if events := Fuse(days, 200, testSignalConfig()); len(events) != 0 {
		t.Errorf("Day 105 fired no detector and must not anchor an event, got %+v", events)
	}

	days[types.SignalBenford] = []int{105}
	events := Fuse(days, 200, testSignalConfig())
	if len(events) != 1 || events[0].Index != 100 {
		t.Fatalf("Firings exactly tolerance apart should anchor on the earlier day, got %+v", events)
	}
}

func TestFuse_SingleDetectorCountsOnce(t *testing.T) {
	days := map[types.SignalKind][]int{
		types.SignalVPD: {100, 101, 102},
	}

	if events := Fuse(days, 200, testSignalConfig()); len(events) != 0 {
		t.Errorf("Repeated firings of one detector must not combine, got %+v", events)
	}
}

func TestFuse_AllThreeDetectors(t *testing.T) {
	days := map[types.SignalKind][]int{
		types.SignalVPD:     {120},
		types.SignalBenford: {118},
		types.SignalSDE:     {122},
	}

	events := Fuse(days, 200, testSignalConfig())

	if len(events) != 1 {
		t.Fatalf("expected one event, got %+v", events)
	}
	if events[0].Index != 118 {
		t.Errorf("earliest firing day should claim the cluster, got %d", events[0].Index)
	}
	if len(events[0].Supporting) != 3 {
		t.Errorf("all three detectors should support the event, got %v", events[0].Supporting)
	}
}

func TestFuse_RespectsEvaluableRange(t *testing.T) {
	days := map[types.SignalKind][]int{
		types.SignalVPD:     {50, 175},
		types.SignalBenford: {52, 176},
	}

	if events := Fuse(days, 200, testSignalConfig()); len(events) != 0 {
		t.Errorf("days inside warmup or lookahead should not fuse, got %+v", events)
	}
}

func TestFuse_SeparateClusters(t *testing.T) {
	days := map[types.SignalKind][]int{
		types.SignalVPD: {80, 140},
		types.SignalSDE: {82, 137},
	}

	events := Fuse(days, 200, testSignalConfig())

	if len(events) != 2 {
		t.Fatalf("expected two clusters, got %+v", events)
	}
	if events[0].Index != 80 || events[1].Index != 137 {
		t.Errorf("unexpected event days %d, %d", events[0].Index, events[1].Index)
	}
}

func TestDetect(t *testing.T) {
	days := map[types.SignalKind][]int{
		types.SignalVPD:     {100},
		types.SignalBenford: {103},
	}
	cfg := testSignalConfig()

	vpd := Detect(types.SignalVPD, days, 200, cfg)
	if len(vpd) != 1 || vpd[0].Kind != types.SignalVPD || vpd[0].Index != 100 {
		t.Errorf("Detect(VPD) should wrap raw days, got %+v", vpd)
	}

	combined := Detect(types.SignalCombined, days, 200, cfg)
	if len(combined) != 1 || combined[0].Kind != types.SignalCombined {
		t.Errorf("Detect(COMBINED) should fuse, got %+v", combined)
	}

	if sde := Detect(types.SignalSDE, days, 200, cfg); len(sde) != 0 {
		t.Errorf("Detect(SDE) with no days should be empty, got %+v", sde)
	}
}
