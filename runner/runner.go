package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/storyproof/story-acceptor/metrics"
	"github.com/storyproof/story-acceptor/types"
)

// ArtifactStore persists captured output for one run and returns a
// pointer (a path relative to the run directory) that the report can
// reference. Implementations must be safe for concurrent use; workers
// write disjoint artifact names.
type ArtifactStore interface {
	WriteArtifact(name string, data []byte) (string, error)
}

// Config holds configuration for creating an Orchestrator.
type Config struct {
	Cases   []types.TestCase
	Drivers []types.Driver
	// ReferenceRuntime, when set, executes the bytecode produced by
	// compiler drivers in a composed pipeline. When nil compiler pairs
	// are judged on compile success alone.
	ReferenceRuntime *types.Driver
	Concurrency      int           // 0 = number of CPUs
	Timeout          time.Duration // per invocation, 0 = DefaultTimeout
	RunID            string
	Log              log.Logger
	Artifacts        ArtifactStore // optional
}

// RunResult is the raw product of one orchestrated run, before report
// serialization.
type RunResult struct {
	RunID string
	// Matrix is dense: index = testIndex*len(Drivers)+driverIndex.
	// Entries are nil for kind-incompatible pairs and for pairs that
	// never completed before an interrupt.
	Matrix    []*types.ExecutionResult
	Scheduled int
	Completed int
	Duration  time.Duration
	Truncated bool
}

// Orchestrator drives the full cross product of cases and drivers.
type Orchestrator struct {
	cfg      Config
	executor *Executor
	log      log.Logger
}

// NewOrchestrator validates the configuration and creates an orchestrator.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("concurrency cannot be negative")
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.New().String()
	}
	if cfg.ReferenceRuntime != nil && cfg.ReferenceRuntime.Kind != types.DriverRuntime {
		return nil, fmt.Errorf("reference runtime %q is not a runtime driver", cfg.ReferenceRuntime.Name)
	}

	return &Orchestrator{
		cfg:      cfg,
		executor: NewExecutor(cfg.Log, cfg.Timeout),
		log:      cfg.Log.New("run_id", cfg.RunID),
	}, nil
}

// Run executes every compatible pair and returns the dense result
// matrix. Completion order may differ from index order; matrix content
// is deterministic regardless of scheduling or worker count.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	start := time.Now()

	tmpDir, err := os.MkdirTemp("", "story-acceptor-*")
	if err != nil {
		return nil, fmt.Errorf("creating scratch directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	work := o.collectPairWork()
	matrix := make([]*types.ExecutionResult, len(o.cfg.Cases)*len(o.cfg.Drivers))

	pe := newParallelExecutor(o.log, o.cfg.Concurrency, func(ctx context.Context, w pairWork) *types.ExecutionResult {
		return o.runPair(ctx, w, tmpDir)
	})
	completed := pe.ExecutePairs(ctx, work, matrix)

	result := &RunResult{
		RunID:     o.cfg.RunID,
		Matrix:    matrix,
		Scheduled: len(work),
		Completed: completed,
		Duration:  time.Since(start),
		Truncated: completed < len(work),
	}

	o.log.Info("Run completed",
		"pairs", result.Scheduled,
		"completed", result.Completed,
		"duration", result.Duration,
		"truncated", result.Truncated)

	return result, nil
}

// collectPairWork builds the cross product of cases and drivers, minus
// kind-incompatible pairs, which are omitted rather than errored.
func (o *Orchestrator) collectPairWork() []pairWork {
	driverCount := len(o.cfg.Drivers)
	var work []pairWork
	for ti, tc := range o.cfg.Cases {
		for di, drv := range o.cfg.Drivers {
			if !drv.AppliesTo(tc.Kind) {
				continue
			}
			work = append(work, pairWork{
				Test:        tc,
				Driver:      drv,
				TestIndex:   ti,
				DriverIndex: di,
				Slot:        types.ResultIndex(ti, driverCount, di),
			})
		}
	}
	return work
}

// runPair executes the full pipeline for one pair: spawn, capture, diff,
// classify. It returns nil only when the invocation was cancelled by a
// global interrupt.
func (o *Orchestrator) runPair(ctx context.Context, w pairWork, tmpDir string) *types.ExecutionResult {
	tc, drv := w.Test, w.Driver

	if tc.Metadata.SkippedFor(drv.Name) {
		o.log.Debug("Skipping pair per metadata", "test", tc.ID, "driver", drv.Name)
		return o.finishPair(w, RawOutcome{}, nil, types.StatusSkipped)
	}

	var outcome RawOutcome
	switch {
	case !drv.Resolved:
		outcome = RawOutcome{SpawnErr: drv.ResolveErr}
	case drv.Kind == types.DriverRuntime:
		outcome = o.executor.RunStory(ctx, drv, tc.SourcePath, tc.InputPath)
	default:
		outcome = o.runCompilerPipeline(ctx, drv, tc, tmpDir)
	}

	if outcome.Canceled {
		return nil
	}

	var diff *DiffResult
	if outcome.Completed() && outcome.ExitCode == 0 && o.comparisonApplies(drv) {
		diff = o.compareTranscript(tc, drv, &outcome)
	}

	status := Classify(false, outcome, diff)
	return o.finishPair(w, outcome, diff, status)
}

// comparisonApplies reports whether the pair produces a transcript to
// compare. Compiler pairs only do when a reference runtime completes
// the pipeline.
func (o *Orchestrator) comparisonApplies(drv types.Driver) bool {
	return drv.Kind == types.DriverRuntime || o.cfg.ReferenceRuntime != nil
}

// runCompilerPipeline compiles the source case to a uniquely named
// scratch file and, when a reference runtime is configured, executes the
// product against the case input.
func (o *Orchestrator) runCompilerPipeline(ctx context.Context, drv types.Driver, tc types.TestCase, tmpDir string) RawOutcome {
	outPath := filepath.Join(tmpDir, fmt.Sprintf("%s_%s_%s.bytecode", tc.ID, drv.Name, uuid.NewString()[:8]))

	compileOut := o.executor.CompileStory(ctx, drv, tc.SourcePath, outPath)
	if !compileOut.Completed() || compileOut.ExitCode != 0 {
		return compileOut
	}

	if _, err := os.Stat(outPath); err != nil {
		compileOut.SpawnErr = fmt.Sprintf("compiler exited 0 but produced no bytecode at %s", outPath)
		return compileOut
	}

	ref := o.cfg.ReferenceRuntime
	if ref == nil {
		return compileOut
	}
	if !ref.Resolved {
		compileOut.SpawnErr = fmt.Sprintf("reference runtime %s: %s", ref.Name, ref.ResolveErr)
		return compileOut
	}

	runOut := o.executor.RunStory(ctx, *ref, outPath, tc.InputPath)
	runOut.Duration += compileOut.Duration
	if len(compileOut.Stderr) > 0 {
		runOut.Stderr = append(append(compileOut.Stderr, '\n'), runOut.Stderr...)
	}
	return runOut
}

// compareTranscript diffs captured stdout against the golden transcript.
// A transcript read failure is an infra error on the pair, not a crash.
func (o *Orchestrator) compareTranscript(tc types.TestCase, drv types.Driver, outcome *RawOutcome) *DiffResult {
	expected, err := os.ReadFile(tc.TranscriptPath)
	if err != nil {
		outcome.SpawnErr = fmt.Sprintf("reading transcript: %v", err)
		return nil
	}

	diff, err := Compare(expected, outcome.Stdout, tc.TranscriptPath, fmt.Sprintf("%s output", drv.Name))
	if err != nil {
		outcome.SpawnErr = fmt.Sprintf("comparing output: %v", err)
		return nil
	}
	return &diff
}

// finishPair freezes the pair's outcome into its immutable result,
// persisting artifacts and recording metrics along the way.
func (o *Orchestrator) finishPair(w pairWork, outcome RawOutcome, diff *DiffResult, status types.Status) *types.ExecutionResult {
	tc, drv := w.Test, w.Driver

	result := &types.ExecutionResult{
		TestID:     tc.ID,
		DriverName: drv.Name,
		Status:     status,
		ExitCode:   outcome.ExitCode,
		Duration:   outcome.Duration,
		DurationMS: outcome.Duration.Milliseconds(),
		TimedOut:   outcome.TimedOut,
		InfraError: outcome.SpawnErr,
		Stdout:     string(outcome.Stdout),
		Stderr:     string(outcome.Stderr),
	}
	if diff != nil {
		result.Diff = diff.Text
	}

	if override, ok := tc.Metadata.Overrides[drv.Name]; ok && override == status {
		result.Expected = true
	}

	o.persistArtifacts(result)
	metrics.RecordResult(o.cfg.RunID, drv.Name, status)

	o.log.Info("Pair classified",
		"test", tc.ID,
		"driver", drv.Name,
		"status", status,
		"exit_code", outcome.ExitCode,
		"duration", outcome.Duration)

	return result
}

func (o *Orchestrator) persistArtifacts(result *types.ExecutionResult) {
	store := o.cfg.Artifacts
	if store == nil {
		return
	}

	prefix := fmt.Sprintf("%s_%s", result.TestID, result.DriverName)
	write := func(suffix, content string) string {
		path, err := store.WriteArtifact(prefix+suffix, []byte(content))
		if err != nil {
			o.log.Error("Failed to persist artifact", "artifact", prefix+suffix, "error", err)
			return ""
		}
		return path
	}

	result.StdoutPath = write("_stdout.txt", result.Stdout)
	result.StderrPath = write("_stderr.txt", result.Stderr)
	if result.Diff != "" {
		result.DiffPath = write("_diff.txt", result.Diff)
	}
}
