package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/medpass/internal/app"
	"github.com/iudanet/medpass/internal/cli"
	"github.com/iudanet/medpass/internal/cli/iocli"
	"github.com/iudanet/medpass/internal/config"
	"github.com/iudanet/medpass/internal/models"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	configPath := flag.String("config", "", "Path to config file")
	dbPath := flag.String("db", "", "Path to local database (overrides config)")
	pin := flag.String("pin", "", "PIN (not recommended, use MEDPASS_PIN or --pin-file)")
	pinFile := flag.String("pin-file", "", "Path to file containing the PIN")
	verbose := flag.Bool("verbose", false, "Log diagnostic messages to stderr")

	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	term := iocli.NewStdio()

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage(term)
		os.Exit(1)
	}

	if *configPath != "" {
		if err := os.Setenv("CONFIG_PATH", *configPath); err != nil {
			fail(err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		fail(err)
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	// CLI пишет в stderr только предупреждения, если не просили подробнее
	logCfg := cfg.Log
	logCfg.Level = "warn"
	if *verbose {
		logCfg.Level = "debug"
	}
	logger := app.NewLogger(logCfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, logger)
	if err != nil {
		fail(err)
	}

	c := cli.New(term, a, cfg, logger, cli.PINSources{FromFile: *pinFile, FromArgs: *pin})
	runErr := c.Run(ctx, args[0], args[1:])

	if err := a.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}

	if runErr != nil {
		if errors.Is(runErr, models.ErrNoIdentity) || errors.Is(runErr, cli.ErrUnknownCommand) {
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", runErr)
			cli.PrintUsage(term)
			os.Exit(1)
		}
		fail(runErr)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func printVersion() {
	fmt.Printf("MedPass\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
