package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fazecat/benfordscan/Internal/utils/config"
)

func TestNew(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)

	log, err := New(config.LogConfig{Level: "debug", Format: "json", Output: filepath.Join(t.TempDir(), "scan.log")})
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf).With(String("run", "r1"))

	log.Info("scanned",
		String("symbol", "ACME"),
		Int("bars", 250),
		Float("chi2", 21.5),
		Duration("took", 1500*time.Millisecond),
		Error(errors.New("boom")),
	)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "scanned", line["message"])
	assert.Equal(t, "r1", line["run"])
	assert.Equal(t, "ACME", line["symbol"])
	assert.EqualValues(t, 250, line["bars"])
	assert.InDelta(t, 21.5, line["chi2"], 1e-9)
	assert.EqualValues(t, 1500, line["took"])
	assert.Equal(t, "boom", line["error"])
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() { Nop().Error("ignored", Int("n", 1)) })
}
