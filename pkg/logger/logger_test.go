package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug":    logrus.DebugLevel,
		" INFO ":   logrus.InfoLevel,
		"warning":  logrus.WarnLevel,
		"Warn":     logrus.WarnLevel,
		"error":    logrus.ErrorLevel,
		"":         logrus.InfoLevel,
		"nonsense": logrus.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), "input %q", in)
	}
}

func TestNewJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	l := New("info", "json", &buf)
	l.WithField("round_id", "r1").Info("exported")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "exported", line["msg"])
	assert.Equal(t, "r1", line["round_id"])
}

func TestNewFiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("warn", "text", &buf)
	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestPackageLevelHelpers(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	prev := GetLogLevel()
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		defaultLogger.SetLevel(prev)
	})

	SetLogLevelFromString("debug")
	Debug("round %s saved", "abc")
	assert.Contains(t, buf.String(), "round abc saved")
	assert.Equal(t, logrus.DebugLevel, GetLogLevel())
}
