package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/novelmesh/config"
)

func TestParseScores(t *testing.T) {
	scores, err := parseScores(map[string]string{"draft_completion": "80", "overall_quality_score": "91.5"})
	require.NoError(t, err)
	assert.Equal(t, 80.0, scores["draft_completion"])
	assert.Equal(t, 91.5, scores["overall_quality_score"])

	scores, err = parseScores(nil)
	require.NoError(t, err)
	assert.Nil(t, scores)

	_, err = parseScores(map[string]string{"draft_completion": "most"})
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, sync, err := newLogger(config.LoggingConfig{Level: "debug", Format: "json", Backend: "slog"})
	require.NoError(t, err)
	l.Info("hello", "k", "v")
	sync()

	l, sync, err = newLogger(config.LoggingConfig{Level: "warn", Format: "console", Backend: "zap"})
	require.NoError(t, err)
	l.Warn("hello", "k", "v")
	sync()
}
