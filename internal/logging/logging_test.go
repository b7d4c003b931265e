package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNew_LevelByVerbose(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Writer: &buf})

	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	buf.Reset()
	log = New(Options{Verbose: true, Writer: &buf})
	log.Debug("debug line")
	assert.Contains(t, buf.String(), "debug line")
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{JSON: true, Writer: &buf})

	log.Error("task failed", zap.String("asset", "dog.png"), zap.String("variant", "400w"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "task failed", entry["msg"])
	assert.Equal(t, "dog.png", entry["asset"])
	assert.Equal(t, "400w", entry["variant"])
	assert.Equal(t, "error", entry["level"])
}
