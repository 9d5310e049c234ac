package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/storyproof/story-acceptor/types"
)

// DefaultTimeout is the per-invocation wall-clock budget when none is
// configured.
const DefaultTimeout = 10 * time.Second

// Executor runs one driver invocation as an isolated child process.
//
// Every child gets its own process group so the whole subtree can be
// terminated atomically when the wall-clock budget expires. Output
// captured before the kill is preserved; partial output is diagnostic
// value. The Executor performs no retries.
type Executor struct {
	log     log.Logger
	timeout time.Duration
	tracer  trace.Tracer
}

// NewExecutor creates an executor with the given per-invocation timeout.
func NewExecutor(logger log.Logger, timeout time.Duration) *Executor {
	if logger == nil {
		logger = log.Root()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{
		log:     logger,
		timeout: timeout,
		tracer:  otel.Tracer("story-acceptor/runner"),
	}
}

// RunStory invokes a runtime driver on a bytecode file. The test case's
// input script is fed to the child's standard input, one 1-based choice
// index per line; the child writes the full story transcript to stdout.
func (e *Executor) RunStory(ctx context.Context, driver types.Driver, bytecodePath, inputPath string) RawOutcome {
	argv := append(append([]string{}, driver.Command...), bytecodePath)
	return e.invoke(ctx, fmt.Sprintf("run %s", driver.Name), argv, inputPath)
}

// CompileStory invokes a compiler driver as `driver -o <out> <src>`.
// The driver is expected to exit 0 and write bytecode to outPath.
func (e *Executor) CompileStory(ctx context.Context, driver types.Driver, sourcePath, outPath string) RawOutcome {
	argv := append(append([]string{}, driver.Command...), "-o", outPath, sourcePath)
	return e.invoke(ctx, fmt.Sprintf("compile %s", driver.Name), argv, "")
}

// invoke spawns argv in its own process group, waits for completion or
// timeout, and returns whatever output was captured either way.
func (e *Executor) invoke(ctx context.Context, name string, argv []string, stdinPath string) RawOutcome {
	ctx, span := e.tracer.Start(ctx, name)
	defer span.End()

	stdout := newTailBuffer(defaultCaptureTailBytes)
	stderr := newTailBuffer(defaultCaptureTailBytes)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	setProcessGroup(cmd)

	if stdinPath != "" {
		stdin, err := os.Open(stdinPath)
		if err != nil {
			return RawOutcome{SpawnErr: fmt.Sprintf("opening input file: %v", err)}
		}
		defer stdin.Close()
		cmd.Stdin = stdin
	}

	e.log.Debug("Spawning driver process", "command", cmd.String(), "timeout", e.timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return RawOutcome{
			SpawnErr: fmt.Sprintf("spawning %s: %v", argv[0], err),
			Duration: time.Since(start),
		}
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	outcome := RawOutcome{}
	select {
	case err := <-waitDone:
		if err != nil {
			if _, ok := err.(*exec.ExitError); !ok {
				// Wait failed for a reason other than the process
				// exiting abnormally, e.g. an I/O error on capture.
				outcome.SpawnErr = fmt.Sprintf("waiting for %s: %v", argv[0], err)
			}
		}
	case <-timer.C:
		outcome.TimedOut = true
		e.killGroup(cmd, argv[0])
		<-waitDone
	case <-ctx.Done():
		outcome.Canceled = true
		e.killGroup(cmd, argv[0])
		<-waitDone
	}

	outcome.Duration = time.Since(start)
	outcome.Stdout = stdout.Bytes()
	outcome.Stderr = stderr.Bytes()
	if cmd.ProcessState != nil {
		outcome.ExitCode = cmd.ProcessState.ExitCode()
	}

	if stdout.Truncated() || stderr.Truncated() {
		e.log.Warn("Driver output exceeded capture limit, keeping tail only",
			"command", argv[0], "limit", defaultCaptureTailBytes)
	}

	return outcome
}

func (e *Executor) killGroup(cmd *exec.Cmd, name string) {
	if err := killProcessGroup(cmd); err != nil {
		e.log.Error("Failed to kill driver process group", "driver", name, "error", err)
	}
}
