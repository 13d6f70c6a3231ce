package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"

	"github.com/itohio/buckbench/pkg/config"
	"github.com/itohio/buckbench/pkg/plot"
)

func main() {
	var (
		configFlag   = flag.String("config", "buckbench.yaml", "Configuration file path")
		envFlag      = flag.String("env", ".env", "Environment file with BUCKBENCH_* overrides")
		mockFlag     = flag.Bool("mock", false, "Use simulated regulator, trigger pin and scope")
		logLevelFlag = flag.String("log-level", "", "Log level override (debug, info, warn, error)")
		writeFlag    = flag.String("write-config", "", "Write the effective configuration to this path and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.ApplyEnv(*envFlag); err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	if *logLevelFlag != "" {
		cfg.Log.Level = *logLevelFlag
	}

	log := setupLogger(cfg.Log)

	if *writeFlag != "" {
		if err := cfg.Save(*writeFlag); err != nil {
			log.WithError(err).Fatal("failed to write configuration")
		}
		log.WithField("path", *writeFlag).Info("configuration written")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fig, err := capture(ctx, cfg, *mockFlag, log)
	if err != nil {
		log.WithError(err).Fatal("capture failed")
	}

	plot.Show(cfg.Plot, fig)
}
