package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "STORY_ACCEPTOR"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	SourceDir = &cli.StringFlag{
		Name:    "source-dir",
		Value:   "",
		EnvVars: prefixEnvVars("SOURCE_DIR"),
		Usage:   "Path to the source-language test case corpus",
	}
	BytecodeDir = &cli.StringFlag{
		Name:    "bytecode-dir",
		Value:   "",
		EnvVars: prefixEnvVars("BYTECODE_DIR"),
		Usage:   "Path to the pre-compiled bytecode test case corpus",
	}
	DriversConfig = &cli.StringFlag{
		Name:    "drivers-config",
		Value:   "drivers.yaml",
		EnvVars: prefixEnvVars("DRIVERS_CONFIG"),
		Usage:   "Path to the driver manifest (eg. 'drivers.yaml')",
	}
	Drivers = &cli.StringSliceFlag{
		Name:    "drivers",
		EnvVars: prefixEnvVars("DRIVERS"),
		Usage:   "Driver names to include (default: all drivers in the manifest)",
	}
	Concurrency = &cli.IntFlag{
		Name:    "concurrency",
		Value:   0,
		EnvVars: prefixEnvVars("CONCURRENCY"),
		Usage:   "Number of concurrent invocation workers (0 = number of CPUs)",
	}
	Timeout = &cli.DurationFlag{
		Name:    "timeout",
		Value:   10 * time.Second,
		EnvVars: prefixEnvVars("TIMEOUT"),
		Usage:   "Wall-clock budget per driver invocation (e.g. '10s', '1m')",
	}
	OutDir = &cli.StringFlag{
		Name:    "outdir",
		Value:   "out",
		EnvVars: prefixEnvVars("OUTDIR"),
		Usage:   "Directory to store run artifacts and the summary",
	}
	Serve = &cli.BoolFlag{
		Name:    "serve",
		Value:   false,
		EnvVars: prefixEnvVars("SERVE"),
		Usage:   "Serve the report over HTTP after the run completes",
	}
	ServeAddr = &cli.StringFlag{
		Name:    "serve-addr",
		Value:   "127.0.0.1:8000",
		EnvVars: prefixEnvVars("SERVE_ADDR"),
		Usage:   "Address for the report server when --serve is set",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log.level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level (trace, debug, info, warn, error, crit)",
	}
)

var requiredFlags = []cli.Flag{
	DriversConfig,
}

var optionalFlags = []cli.Flag{
	SourceDir,
	BytecodeDir,
	Drivers,
	Concurrency,
	Timeout,
	OutDir,
	Serve,
	ServeAddr,
	LogLevel,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	if ctx.String(SourceDir.Name) == "" && ctx.String(BytecodeDir.Name) == "" {
		return fmt.Errorf("at least one of --%s or --%s is required", SourceDir.Name, BytecodeDir.Name)
	}
	if ctx.String(DriversConfig.Name) == "" {
		return fmt.Errorf("flag %s is required", DriversConfig.Name)
	}
	return nil
}
