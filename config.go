package acceptor

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/storyproof/story-acceptor/flags"
)

// Config holds the application configuration
type Config struct {
	SourceDir     string        // Source-language corpus root ("" = none)
	BytecodeDir   string        // Bytecode corpus root ("" = none)
	DriversConfig string        // Path to the driver manifest
	Drivers       []string      // Driver names to include (empty = all)
	Concurrency   int           // Concurrent invocation workers (0 = auto)
	Timeout       time.Duration // Wall-clock budget per invocation
	OutDir        string        // Directory for run artifacts
	Serve         bool          // Serve the report over HTTP after the run
	ServeAddr     string        // Report server address
	Log           log.Logger
}

// NewConfig creates a new Config from cli context
func NewConfig(ctx *cli.Context, logger log.Logger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	absPath := func(flag, path string) (string, error) {
		if path == "" {
			return "", nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve absolute path for %s '%s': %w", flag, path, err)
		}
		return abs, nil
	}

	sourceDir, err := absPath(flags.SourceDir.Name, ctx.String(flags.SourceDir.Name))
	if err != nil {
		return nil, err
	}
	bytecodeDir, err := absPath(flags.BytecodeDir.Name, ctx.String(flags.BytecodeDir.Name))
	if err != nil {
		return nil, err
	}
	driversConfig, err := absPath(flags.DriversConfig.Name, ctx.String(flags.DriversConfig.Name))
	if err != nil {
		return nil, err
	}
	outDir, err := absPath(flags.OutDir.Name, ctx.String(flags.OutDir.Name))
	if err != nil {
		return nil, err
	}

	concurrency := ctx.Int(flags.Concurrency.Name)
	if concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative: %d", concurrency)
	}

	timeout := ctx.Duration(flags.Timeout.Name)
	if timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive: %v", timeout)
	}

	return &Config{
		SourceDir:     sourceDir,
		BytecodeDir:   bytecodeDir,
		DriversConfig: driversConfig,
		Drivers:       ctx.StringSlice(flags.Drivers.Name),
		Concurrency:   concurrency,
		Timeout:       timeout,
		OutDir:        outDir,
		Serve:         ctx.Bool(flags.Serve.Name),
		ServeAddr:     ctx.String(flags.ServeAddr.Name),
		Log:           logger,
	}, nil
}
