package main

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/itohio/buckbench/pkg/bench"
	"github.com/itohio/buckbench/pkg/config"
	"github.com/itohio/buckbench/pkg/waveform"
)

// capture runs the bench once. Devices are released before returning so the
// plot window never holds hardware.
func capture(ctx context.Context, cfg *config.Config, mock bool, log *logrus.Logger) (*waveform.Figure, error) {
	b, err := bench.Open(cfg, mock, log)
	if err != nil {
		return nil, err
	}

	fig, err := b.Run(ctx)
	if closeErr := b.Close(); closeErr != nil {
		log.WithError(closeErr).Warn("device release failed")
	}
	return fig, err
}

func setupLogger(cfg config.LogConfig) *logrus.Logger {
	log := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return log
}
