package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRejectsUnknownSettings(t *testing.T) {
	assert.Error(t, Init("verbose", "text"))
	assert.Error(t, Init("info", "xml"))
	assert.NoError(t, Init("debug", "json"))
}

func TestWithFieldsWritesStructuredJSON(t *testing.T) {
	require.NoError(t, Init("info", "json"))
	var buf bytes.Buffer
	SetOutput(&buf)

	WithFields(map[string]any{"reason": "provider_error", "emitted": 2}).Warn("fallback")
	Debug("hidden at info level")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "fallback", line["msg"])
	assert.Equal(t, "warning", line["level"])
	assert.Equal(t, "provider_error", line["reason"])
	assert.EqualValues(t, 2, line["emitted"])
}
