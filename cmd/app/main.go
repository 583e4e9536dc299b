package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"SignalFuse/internal/di"
	"SignalFuse/pkg/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Printf("signalfuse: %v", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("signalfuse", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "config file path")
	checkOnly := fs.Bool("check", false, "validate the config and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", *configPath, err)
	}
	log.Printf("env=%s scalp=%s swing=%s kafka=%t postgres=%t",
		cfg.Environment, cfg.Fusion.Scalp.Timeframe, cfg.Fusion.Swing.Timeframe,
		cfg.Kafka.Enabled, cfg.Postgres.Enabled)
	if *checkOnly {
		return nil
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	// blocks until SIGINT or SIGTERM
	return app.Run()
}
