package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordSeriesScanned("VPD")
	r.RecordSeriesScanned("VPD")
	r.RecordSignals("COMBINED", 4)
	r.RecordVerdict("SDE", "GO")
	r.RecordGridCandidate("exits", "excluded")
	r.RecordLatency("scan", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.seriesScanned.WithLabelValues("VPD")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.signalsFound.WithLabelValues("COMBINED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.verdicts.WithLabelValues("SDE", "GO")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.gridCandidates.WithLabelValues("exits", "excluded")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.RecordSeriesScanned("VPD")
		r.RecordSignals("VPD", 1)
		r.RecordVerdict("VPD", "GO")
		r.RecordGridCandidate("exits", "scored")
		r.RecordError("feed")
		r.RecordLatency("scan", 1)
	})
}
