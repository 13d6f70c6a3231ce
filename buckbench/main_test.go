package main

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/buckbench/pkg/config"
)

func TestSetupLogger(t *testing.T) {
	log := setupLogger(config.LogConfig{Level: "debug", Format: "json"})
	assert.Equal(t, logrus.DebugLevel, log.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, log.Formatter)

	log = setupLogger(config.LogConfig{Level: "bogus", Format: "text"})
	assert.Equal(t, logrus.InfoLevel, log.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, log.Formatter)
}

func TestCapture_Mock(t *testing.T) {
	cfg := config.Default()
	cfg.Trigger.Duration = time.Millisecond
	cfg.Mock.Points = 512
	log, _ := test.NewNullLogger()

	fig, err := capture(context.Background(), cfg, true, log)
	require.NoError(t, err)
	require.Len(t, fig.Traces, 2)
	assert.Len(t, fig.Time, 512)
}

func TestCapture_Canceled(t *testing.T) {
	cfg := config.Default()
	cfg.Trigger.Duration = time.Millisecond
	log, _ := test.NewNullLogger()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := capture(ctx, cfg, true, log)
	assert.ErrorIs(t, err, context.Canceled)
}
