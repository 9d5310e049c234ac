//go:build unix

package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyproof/story-acceptor/types"
)

// writeFixture creates a test case on disk and returns it.
func writeFixture(t *testing.T, id string, kind types.TestCaseKind, story, input, transcript string, meta types.TestMetadata) types.TestCase {
	t.Helper()

	dir := t.TempDir()
	storyPath := filepath.Join(dir, "story.bytecode")
	if kind == types.TestCaseSource {
		storyPath = filepath.Join(dir, "story.src")
	}
	inputPath := filepath.Join(dir, "input.txt")
	transcriptPath := filepath.Join(dir, "transcript.txt")

	require.NoError(t, os.WriteFile(storyPath, []byte(story), 0644))
	require.NoError(t, os.WriteFile(inputPath, []byte(input), 0644))
	require.NoError(t, os.WriteFile(transcriptPath, []byte(transcript), 0644))

	return types.TestCase{
		ID:             id,
		Kind:           kind,
		SourcePath:     storyPath,
		InputPath:      inputPath,
		TranscriptPath: transcriptPath,
		Metadata:       meta,
	}
}

// catVM behaves like a trivial story runtime: it prints the bytecode
// file verbatim, so the expected transcript is just the bytecode content.
func catVM(t *testing.T, name string) types.Driver {
	t.Helper()
	script := writeScript(t, name, `cat "$1"`)
	return types.Driver{Name: name, Kind: types.DriverRuntime, Command: []string{script}, Resolved: true}
}

func runMatrix(t *testing.T, cfg Config) *RunResult {
	t.Helper()
	orch, err := NewOrchestrator(cfg)
	require.NoError(t, err)
	result, err := orch.Run(context.Background())
	require.NoError(t, err)
	return result
}

func TestRunSingleRuntimePass(t *testing.T) {
	tc := writeFixture(t, "hello", types.TestCaseBytecode,
		"Once upon a time.\n", "", "Once upon a time.\n", types.TestMetadata{})
	vm := catVM(t, "cat-vm")

	result := runMatrix(t, Config{Cases: []types.TestCase{tc}, Drivers: []types.Driver{vm}, Concurrency: 1})

	require.Len(t, result.Matrix, 1)
	require.NotNil(t, result.Matrix[0])
	assert.Equal(t, types.StatusPass, result.Matrix[0].Status)
	assert.Equal(t, 1, result.Scheduled)
	assert.Equal(t, 1, result.Completed)
	assert.False(t, result.Truncated)
}

func TestRunOutputMismatchFails(t *testing.T) {
	tc := writeFixture(t, "mismatch", types.TestCaseBytecode,
		"What the driver prints.\n", "", "What the transcript expects.\n", types.TestMetadata{})
	vm := catVM(t, "cat-vm")

	result := runMatrix(t, Config{Cases: []types.TestCase{tc}, Drivers: []types.Driver{vm}, Concurrency: 1})

	require.NotNil(t, result.Matrix[0])
	assert.Equal(t, types.StatusFail, result.Matrix[0].Status)
	assert.Contains(t, result.Matrix[0].Diff, "What the transcript expects.")
	assert.Contains(t, result.Matrix[0].Diff, "What the driver prints.")
}

func TestRunCrashedDriver(t *testing.T) {
	tc := writeFixture(t, "crash", types.TestCaseBytecode,
		"content\n", "", "content\n", types.TestMetadata{})
	script := writeScript(t, "crash-vm", `echo "boom" >&2; exit 7`)
	vm := types.Driver{Name: "crash-vm", Kind: types.DriverRuntime, Command: []string{script}, Resolved: true}

	result := runMatrix(t, Config{Cases: []types.TestCase{tc}, Drivers: []types.Driver{vm}, Concurrency: 1})

	r := result.Matrix[0]
	require.NotNil(t, r)
	assert.Equal(t, types.StatusCrashed, r.Status)
	assert.Equal(t, 7, r.ExitCode)
	assert.Contains(t, r.Stderr, "boom")
}

func TestRunTimeoutDriver(t *testing.T) {
	tc := writeFixture(t, "slow", types.TestCaseBytecode,
		"content\n", "", "content\n", types.TestMetadata{})
	script := writeScript(t, "slow-vm", `echo "partial"; sleep 30`)
	vm := types.Driver{Name: "slow-vm", Kind: types.DriverRuntime, Command: []string{script}, Resolved: true}

	result := runMatrix(t, Config{
		Cases: []types.TestCase{tc}, Drivers: []types.Driver{vm},
		Concurrency: 1, Timeout: 200 * time.Millisecond,
	})

	r := result.Matrix[0]
	require.NotNil(t, r)
	assert.Equal(t, types.StatusTimeout, r.Status)
	assert.True(t, r.TimedOut)
	assert.Contains(t, r.Stdout, "partial")
	// A timed out pair still counts as completed; only interrupted pairs
	// leave their slot empty.
	assert.Equal(t, 1, result.Completed)
	assert.False(t, result.Truncated)
}

func TestRunUnresolvedDriverIsInfraError(t *testing.T) {
	tc := writeFixture(t, "ghost", types.TestCaseBytecode,
		"content\n", "", "content\n", types.TestMetadata{})
	vm := types.Driver{
		Name: "ghost-vm", Kind: types.DriverRuntime,
		Command: []string{"/nonexistent/ghost-vm"},
		Resolved: false, ResolveErr: "driver binary /nonexistent/ghost-vm: no such file",
	}

	result := runMatrix(t, Config{Cases: []types.TestCase{tc}, Drivers: []types.Driver{vm}, Concurrency: 1})

	r := result.Matrix[0]
	require.NotNil(t, r)
	assert.Equal(t, types.StatusInfraError, r.Status)
	assert.Contains(t, r.InfraError, "ghost-vm")
}

func TestRunSkippedPair(t *testing.T) {
	tc := writeFixture(t, "skipme", types.TestCaseBytecode,
		"content\n", "", "content\n",
		types.TestMetadata{SkipDrivers: []string{"cat-vm"}})
	vm := catVM(t, "cat-vm")

	result := runMatrix(t, Config{Cases: []types.TestCase{tc}, Drivers: []types.Driver{vm}, Concurrency: 1})

	r := result.Matrix[0]
	require.NotNil(t, r)
	assert.Equal(t, types.StatusSkipped, r.Status)
}

func TestRunOverrideMarksExpected(t *testing.T) {
	tc := writeFixture(t, "knownbad", types.TestCaseBytecode,
		"actual output\n", "", "expected output\n",
		types.TestMetadata{Overrides: map[string]types.Status{"cat-vm": types.StatusFail}})
	vm := catVM(t, "cat-vm")

	result := runMatrix(t, Config{Cases: []types.TestCase{tc}, Drivers: []types.Driver{vm}, Concurrency: 1})

	r := result.Matrix[0]
	require.NotNil(t, r)
	assert.Equal(t, types.StatusFail, r.Status)
	assert.True(t, r.Expected)
}

func TestRunOverrideMismatchIsNotExpected(t *testing.T) {
	tc := writeFixture(t, "fixedbad", types.TestCaseBytecode,
		"same\n", "", "same\n",
		types.TestMetadata{Overrides: map[string]types.Status{"cat-vm": types.StatusFail}})
	vm := catVM(t, "cat-vm")

	result := runMatrix(t, Config{Cases: []types.TestCase{tc}, Drivers: []types.Driver{vm}, Concurrency: 1})

	r := result.Matrix[0]
	require.NotNil(t, r)
	assert.Equal(t, types.StatusPass, r.Status)
	assert.False(t, r.Expected)
}

func TestRunMatrixIsDenseWithNilIncompatiblePairs(t *testing.T) {
	bytecodeCase := writeFixture(t, "bc", types.TestCaseBytecode,
		"content\n", "", "content\n", types.TestMetadata{})
	sourceCase := writeFixture(t, "src", types.TestCaseSource,
		"source\n", "", "source\n", types.TestMetadata{})
	vm := catVM(t, "cat-vm")

	compileScript := writeScript(t, "copy-cc", `cp "$3" "$2"`)
	cc := types.Driver{Name: "copy-cc", Kind: types.DriverCompiler, Command: []string{compileScript}, Resolved: true}

	result := runMatrix(t, Config{
		Cases:       []types.TestCase{bytecodeCase, sourceCase},
		Drivers:     []types.Driver{cc, vm},
		Concurrency: 2,
	})

	// 2 cases x 2 drivers dense, but only the compatible diagonal runs.
	require.Len(t, result.Matrix, 4)
	assert.Equal(t, 2, result.Scheduled)

	assert.Nil(t, result.Matrix[types.ResultIndex(0, 2, 0)], "compiler on bytecode case must be omitted")
	require.NotNil(t, result.Matrix[types.ResultIndex(0, 2, 1)])
	require.NotNil(t, result.Matrix[types.ResultIndex(1, 2, 0)])
	assert.Nil(t, result.Matrix[types.ResultIndex(1, 2, 1)], "runtime on source case must be omitted")
}

func TestRunCompilerCompileOnly(t *testing.T) {
	tc := writeFixture(t, "compileonly", types.TestCaseSource,
		"source text\n", "", "never compared\n", types.TestMetadata{})
	script := writeScript(t, "copy-cc", `cp "$3" "$2"`)
	cc := types.Driver{Name: "copy-cc", Kind: types.DriverCompiler, Command: []string{script}, Resolved: true}

	result := runMatrix(t, Config{Cases: []types.TestCase{tc}, Drivers: []types.Driver{cc}, Concurrency: 1})

	r := result.Matrix[0]
	require.NotNil(t, r)
	// Without a reference runtime there is no transcript to compare;
	// compile success alone passes.
	assert.Equal(t, types.StatusPass, r.Status)
}

func TestRunCompilerPipelineWithReferenceRuntime(t *testing.T) {
	tc := writeFixture(t, "pipeline", types.TestCaseSource,
		"story text\n", "", "story text\n", types.TestMetadata{})
	compileScript := writeScript(t, "copy-cc", `cp "$3" "$2"`)
	cc := types.Driver{Name: "copy-cc", Kind: types.DriverCompiler, Command: []string{compileScript}, Resolved: true}
	ref := catVM(t, "ref-vm")

	result := runMatrix(t, Config{
		Cases:            []types.TestCase{tc},
		Drivers:          []types.Driver{cc},
		ReferenceRuntime: &ref,
		Concurrency:      1,
	})

	r := result.Matrix[0]
	require.NotNil(t, r)
	assert.Equal(t, types.StatusPass, r.Status)
}

func TestRunCompilerProducingNoOutputIsInfraError(t *testing.T) {
	tc := writeFixture(t, "liar", types.TestCaseSource,
		"source\n", "", "source\n", types.TestMetadata{})
	script := writeScript(t, "liar-cc", `exit 0`)
	cc := types.Driver{Name: "liar-cc", Kind: types.DriverCompiler, Command: []string{script}, Resolved: true}

	result := runMatrix(t, Config{Cases: []types.TestCase{tc}, Drivers: []types.Driver{cc}, Concurrency: 1})

	r := result.Matrix[0]
	require.NotNil(t, r)
	assert.Equal(t, types.StatusInfraError, r.Status)
	assert.Contains(t, r.InfraError, "produced no bytecode")
}

func TestRunCompilerFailureIsCrashed(t *testing.T) {
	tc := writeFixture(t, "syntaxerr", types.TestCaseSource,
		"source\n", "", "source\n", types.TestMetadata{})
	script := writeScript(t, "strict-cc", `echo "syntax error on line 1" >&2; exit 1`)
	cc := types.Driver{Name: "strict-cc", Kind: types.DriverCompiler, Command: []string{script}, Resolved: true}

	result := runMatrix(t, Config{Cases: []types.TestCase{tc}, Drivers: []types.Driver{cc}, Concurrency: 1})

	r := result.Matrix[0]
	require.NotNil(t, r)
	assert.Equal(t, types.StatusCrashed, r.Status)
	assert.Contains(t, r.Stderr, "syntax error")
}

func TestRunManyPairsConcurrently(t *testing.T) {
	var cases []types.TestCase
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		cases = append(cases, writeFixture(t, id, types.TestCaseBytecode,
			id+" content\n", "", id+" content\n", types.TestMetadata{}))
	}
	drivers := []types.Driver{catVM(t, "vm-one"), catVM(t, "vm-two")}

	result := runMatrix(t, Config{Cases: cases, Drivers: drivers, Concurrency: 4})

	require.Len(t, result.Matrix, 10)
	assert.Equal(t, 10, result.Scheduled)
	assert.Equal(t, 10, result.Completed)
	for ti := range cases {
		for di := range drivers {
			r := result.Matrix[types.ResultIndex(ti, len(drivers), di)]
			require.NotNil(t, r, "pair %d/%d missing", ti, di)
			assert.Equal(t, types.StatusPass, r.Status)
			assert.Equal(t, cases[ti].ID, r.TestID)
			assert.Equal(t, drivers[di].Name, r.DriverName)
		}
	}
}

func TestRunInterruptTruncates(t *testing.T) {
	var cases []types.TestCase
	for _, id := range []string{"a", "b", "c", "d"} {
		cases = append(cases, writeFixture(t, id, types.TestCaseBytecode,
			"content\n", "", "content\n", types.TestMetadata{}))
	}
	script := writeScript(t, "slow-vm", `sleep 30`)
	vm := types.Driver{Name: "slow-vm", Kind: types.DriverRuntime, Command: []string{script}, Resolved: true}

	orch, err := NewOrchestrator(Config{
		Cases: cases, Drivers: []types.Driver{vm},
		Concurrency: 2, Timeout: time.Minute,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	result, err := orch.Run(ctx)
	require.NoError(t, err)

	assert.True(t, result.Truncated)
	assert.Less(t, result.Completed, result.Scheduled)
	for _, r := range result.Matrix {
		assert.Nil(t, r, "interrupted pairs must stay nil, not be zero-filled")
	}
}

func TestNewOrchestratorValidation(t *testing.T) {
	_, err := NewOrchestrator(Config{Concurrency: -1})
	require.Error(t, err)

	cc := types.Driver{Name: "not-a-vm", Kind: types.DriverCompiler}
	_, err = NewOrchestrator(Config{ReferenceRuntime: &cc})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a runtime driver")
}

type memoryStore struct {
	written map[string][]byte
}

func (s *memoryStore) WriteArtifact(name string, data []byte) (string, error) {
	if s.written == nil {
		s.written = make(map[string][]byte)
	}
	s.written[name] = data
	return name, nil
}

func TestRunPersistsArtifacts(t *testing.T) {
	tc := writeFixture(t, "artifacts", types.TestCaseBytecode,
		"actual\n", "", "expected\n", types.TestMetadata{})
	vm := catVM(t, "cat-vm")
	store := &memoryStore{}

	result := runMatrix(t, Config{
		Cases: []types.TestCase{tc}, Drivers: []types.Driver{vm},
		Concurrency: 1, Artifacts: store,
	})

	r := result.Matrix[0]
	require.NotNil(t, r)
	assert.Equal(t, types.StatusFail, r.Status)

	assert.Equal(t, "artifacts_cat-vm_stdout.txt", r.StdoutPath)
	assert.Equal(t, "artifacts_cat-vm_stderr.txt", r.StderrPath)
	assert.Equal(t, "artifacts_cat-vm_diff.txt", r.DiffPath)
	assert.Equal(t, "actual\n", string(store.written["artifacts_cat-vm_stdout.txt"]))
	assert.Contains(t, string(store.written["artifacts_cat-vm_diff.txt"]), "-expected")
}
