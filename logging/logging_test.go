package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/crm-inventory/logging"
)

func TestNew_ParsesLevelAndFallsBack(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, logging.New("debug", "json").GetLevel())
	assert.Equal(t, logrus.InfoLevel, logging.New("chatty", "json").GetLevel())
}

func TestLogError_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOutput("info", "json", &buf)

	logging.LogError(logger, "crm", "SubmitReport", "deduct parts", map[string]string{"report": "r1"}, errors.New("boom"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["msg"])
	assert.Equal(t, "crm", entry["module"])
	assert.Equal(t, "SubmitReport", entry["funcName"])
	assert.Equal(t, "deduct parts", entry["context"])
	assert.Equal(t, map[string]any{"report": "r1"}, entry["data"])
}

func TestLogError_IgnoresNilError(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOutput("info", "text", &buf)

	logging.LogError(logger, "crm", "DeleteReport", "", nil, nil)

	assert.Empty(t, buf.String())
}
