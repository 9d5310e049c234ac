// Package acceptor wires the test case corpora, the driver registry and
// the execution engine into one run-once conformance service.
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/storyproof/story-acceptor/corpus"
	"github.com/storyproof/story-acceptor/metrics"
	"github.com/storyproof/story-acceptor/registry"
	"github.com/storyproof/story-acceptor/reporting"
	"github.com/storyproof/story-acceptor/runner"
	"github.com/storyproof/story-acceptor/service"
	"github.com/storyproof/story-acceptor/types"
)

// Acceptor runs the full TestCase×Driver conformance matrix once and
// persists the result report.
type Acceptor struct {
	config   *Config
	version  string
	cases    []types.TestCase
	registry *registry.Registry

	running atomic.Bool
	summary *types.Summary
}

// New loads the catalogs. Corpus and manifest problems surface here, as
// load-time errors, before anything is executed.
func New(ctx context.Context, config *Config, version string) (*Acceptor, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}

	config.Log.Debug("Creating acceptor with config",
		"sourceDir", config.SourceDir,
		"bytecodeDir", config.BytecodeDir,
		"driversConfig", config.DriversConfig,
		"concurrency", config.Concurrency,
		"timeout", config.Timeout)

	cases, err := corpus.Load(corpus.Config{
		Log:         config.Log,
		SourceDir:   config.SourceDir,
		BytecodeDir: config.BytecodeDir,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load test case corpora: %w", err)
	}

	reg, err := registry.NewRegistry(registry.Config{
		Log:              config.Log,
		DriverConfigFile: config.DriversConfig,
		Include:          config.Drivers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	config.Log.Info("Loaded catalogs", "cases", len(cases), "drivers", len(reg.GetDrivers()))

	return &Acceptor{
		config:   config,
		version:  version,
		cases:    cases,
		registry: reg,
	}, nil
}

// Run executes every compatible pair, writes the report, prints the
// console table and, when configured, serves the report until the
// context is cancelled. Per-pair failures never produce an error here;
// they are data in the report.
func (a *Acceptor) Run(ctx context.Context) error {
	a.running.Store(true)
	defer a.running.Store(false)

	runID := uuid.New().String()
	logger := a.config.Log.New("run_id", runID)
	logger.Info("Starting conformance run", "version", a.version)

	artifacts, err := reporting.NewArtifactWriter(logger, a.config.OutDir, runID)
	if err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}

	drivers := a.registry.GetDrivers()
	orch, err := runner.NewOrchestrator(runner.Config{
		Cases:            a.cases,
		Drivers:          drivers,
		ReferenceRuntime: a.registry.ReferenceRuntime(),
		Concurrency:      a.config.Concurrency,
		Timeout:          a.config.Timeout,
		RunID:            runID,
		Log:              logger,
		Artifacts:        artifacts,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	runResult, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to execute run: %w", err)
	}

	summary := reporting.BuildSummary(a.cases, drivers, runResult)
	a.summary = summary

	if _, err := reporting.WriteSummary(logger, artifacts.RunDir(), summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	a.printResultsTable(summary)

	counts := statusCounts(summary)
	metrics.RecordRun(runID, runResult.Scheduled, counts, runResult.Duration)
	logger.Info("Conformance run completed",
		"pairs", runResult.Scheduled,
		"completed", runResult.Completed,
		"truncated", runResult.Truncated)

	if a.config.Serve && ctx.Err() == nil {
		server := service.NewReportServer(logger, a.config.ServeAddr, artifacts.RunDir())
		return server.Serve(ctx)
	}
	return nil
}

// Running returns true while a run is in flight.
func (a *Acceptor) Running() bool {
	return a.running.Load()
}

// Summary returns the summary of the last completed run, or nil.
func (a *Acceptor) Summary() *types.Summary {
	return a.summary
}

// printResultsTable prints the result matrix to the console.
func (a *Acceptor) printResultsTable(summary *types.Summary) {
	catalog := summary.Statuses

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Story Conformance Results (%s)", formatDuration(summary.Metadata.Duration)))

	t.AppendHeader(table.Row{
		"Test", "Driver", "Status", "Duration", "Exit", "Details",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Test", AutoMerge: true},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Exit", Align: text.AlignRight},
		{Name: "Details", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	counts := statusCounts(summary)
	missing := 0

	for ti, tc := range summary.Examples {
		for di, drv := range summary.Programs {
			if !drv.AppliesTo(tc.Kind) {
				continue
			}
			result := summary.Result(ti, di)
			if result == nil {
				missing++
				t.AppendRow(table.Row{tc.ID, drv.Name, "(missing)", "-", "-", "invocation did not complete before interrupt"})
				continue
			}

			status := result.Status
			statusCell := string(status)
			if info, ok := catalog[string(status)]; ok {
				statusCell = fmt.Sprintf("%s %s", info.Symbol, info.Name)
			}
			if result.Expected {
				statusCell += " (expected)"
			}

			t.AppendRow(table.Row{
				tc.ID,
				drv.Name,
				statusCell,
				formatDuration(result.Duration),
				result.ExitCode,
				resultDetails(result),
			})
		}
		t.AppendSeparator()
	}

	healthy := counts[types.StatusFail] == 0 &&
		counts[types.StatusCrashed] == 0 &&
		counts[types.StatusTimeout] == 0 &&
		counts[types.StatusInfraError] == 0 &&
		missing == 0
	if healthy {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		fmt.Sprintf("%d pass / %d fail", counts[types.StatusPass], counts[types.StatusFail]),
		formatDuration(summary.Metadata.Duration),
		"",
		fmt.Sprintf("%d crashed, %d timeout, %d skipped, %d infra", counts[types.StatusCrashed], counts[types.StatusTimeout], counts[types.StatusSkipped], counts[types.StatusInfraError]),
	})

	t.Render()
}

// resultDetails extracts the most pertinent diagnostic line for display.
func resultDetails(result *types.ExecutionResult) string {
	var detail string
	switch {
	case result.InfraError != "":
		detail = result.InfraError
	case result.Status == types.StatusTimeout:
		detail = "wall-clock budget exceeded; process group terminated"
	case result.Stderr != "":
		detail = result.Stderr
	case result.Status == types.StatusFail:
		detail = "output differs from golden transcript"
	}
	if detail == "" {
		return ""
	}

	// Driver output may carry ANSI colors; strip them for the table.
	detail = stripansi.Strip(detail)
	detail = strings.TrimSpace(detail)
	if idx := strings.Index(detail, "\n"); idx != -1 {
		detail = detail[:idx]
	}
	if len(detail) > 80 {
		detail = detail[:70] + "..."
	}
	return detail
}

func statusCounts(summary *types.Summary) map[types.Status]int {
	counts := make(map[types.Status]int)
	for _, result := range summary.Results {
		if result != nil {
			counts[result.Status]++
		}
	}
	return counts
}

// Helper function to format duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
