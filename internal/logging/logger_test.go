package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulsewatch/internal/config"
)

func TestNewJSONFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pulsewatch.log")
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "json", Output: []string{"file"}, File: path})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	Component(logger, "checker").WithField("job", "probe").Info("tick")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var line map[string]any
	require.NoError(t, json.Unmarshal(raw, &line))
	assert.Equal(t, "tick", line["message"])
	assert.Equal(t, "checker", line["component"])
	assert.Equal(t, "probe", line["job"])
	assert.Contains(t, line, "timestamp")
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(config.LoggingConfig{Level: "loud", Format: "json"})
	assert.Error(t, err)

	_, err = New(config.LoggingConfig{Level: "info", Format: "xml"})
	assert.Error(t, err)

	_, err = New(config.LoggingConfig{Level: "info", Format: "text", Output: []string{"syslog"}})
	assert.Error(t, err)
}
