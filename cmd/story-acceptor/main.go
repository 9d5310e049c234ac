package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	acceptor "github.com/storyproof/story-acceptor"
	"github.com/storyproof/story-acceptor/exitcodes"
	"github.com/storyproof/story-acceptor/flags"
	"github.com/storyproof/story-acceptor/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "story-acceptor"
	app.Usage = "Story Driver Conformance Tester"
	app.Description = "story-acceptor runs every registered compiler and runtime driver against the golden transcript corpora"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			if acceptor.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else {
				cli.HandleExitCoder(cli.Exit(err.Error(), 1))
			}
		}
	}

	// Start telemetry
	shutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server
	svc := service.New()
	svc.Start(ctx)
	defer svc.Shutdown()

	if err := app.RunContext(ctx, os.Args); err != nil {
		log.Crit("Application failed", "message", err)
	}
}

func run(ctx *cli.Context) error {
	logger, err := setupLogger(ctx)
	if err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to setup logger: %w", err))
	}

	cfg, err := acceptor.NewConfig(ctx, logger)
	if err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	cfg.Log.Debug("Config", "config", cfg)

	svc, err := acceptor.New(ctx.Context, cfg, Version)
	if err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to create acceptor: %w", err))
	}

	return svc.Run(ctx.Context)
}

// lvlFromString mirrors the log.LvlFromString helper that was removed from
// github.com/ethereum/go-ethereum/log when it moved to slog-based levels.
func lvlFromString(lvlString string) (slog.Level, error) {
	switch lvlString {
	case "trace", "trce":
		return log.LevelTrace, nil
	case "debug", "dbug":
		return log.LevelDebug, nil
	case "info":
		return log.LevelInfo, nil
	case "warn":
		return log.LevelWarn, nil
	case "error", "eror":
		return log.LevelError, nil
	case "crit":
		return log.LevelCrit, nil
	default:
		return log.LevelDebug, fmt.Errorf("unknown level: %v", lvlString)
	}
}

func setupLogger(ctx *cli.Context) (log.Logger, error) {
	lvl, err := lvlFromString(ctx.String(flags.LogLevel.Name))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", ctx.String(flags.LogLevel.Name), err)
	}
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, lvl, false)
	logger := log.NewLogger(handler)
	log.SetDefault(logger)
	return logger, nil
}
