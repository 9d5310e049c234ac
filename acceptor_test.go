//go:build unix

package acceptor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storyproof/story-acceptor/reporting"
	"github.com/storyproof/story-acceptor/types"
)

// fixture assembles a minimal on-disk world: one bytecode corpus, one
// fake runtime driver and a manifest pointing at it.
type fixture struct {
	config *Config
}

func newFixture(t *testing.T, transcript string) *fixture {
	t.Helper()

	bytecodeDir := t.TempDir()
	caseDir := filepath.Join(bytecodeDir, "hello")
	require.NoError(t, os.MkdirAll(caseDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(caseDir, "story.bytecode"), []byte("Once upon a time.\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(caseDir, "input.txt"), []byte(""), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(caseDir, "transcript.txt"), []byte(transcript), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(caseDir, "metadata.json"), []byte(`{"description":"hello"}`), 0644))

	driverPath := filepath.Join(t.TempDir(), "cat-vm")
	require.NoError(t, os.WriteFile(driverPath, []byte("#!/bin/sh\ncat \"$1\"\n"), 0755))

	manifestPath := filepath.Join(t.TempDir(), "drivers.yaml")
	manifest := "drivers:\n  - name: cat-vm\n    kind: runtime\n    command: [\"" + driverPath + "\"]\n"
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifest), 0644))

	return &fixture{
		config: &Config{
			BytecodeDir:   bytecodeDir,
			DriversConfig: manifestPath,
			Concurrency:   1,
			Timeout:       5 * time.Second,
			OutDir:        t.TempDir(),
			Log:           log.Root(),
		},
	}
}

func TestAcceptorRunWritesSummary(t *testing.T) {
	f := newFixture(t, "Once upon a time.\n")

	a, err := New(context.Background(), f.config, "test")
	require.NoError(t, err)

	require.NoError(t, a.Run(context.Background()))

	summary := a.Summary()
	require.NotNil(t, summary)
	require.Len(t, summary.Results, 1)
	require.NotNil(t, summary.Results[0])
	assert.Equal(t, types.StatusPass, summary.Results[0].Status)
	assert.False(t, summary.Metadata.Truncated)

	// The summary must also exist on disk under the run directory.
	entries, err := os.ReadDir(f.config.OutDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), reporting.RunDirectoryPrefix)

	loaded, err := reporting.LoadSummary(filepath.Join(f.config.OutDir, entries[0].Name(), reporting.SummaryFilename))
	require.NoError(t, err)
	assert.Equal(t, summary.Metadata.RunID, loaded.Metadata.RunID)
}

func TestAcceptorRunFailureIsReportDataNotError(t *testing.T) {
	f := newFixture(t, "A completely different story.\n")

	a, err := New(context.Background(), f.config, "test")
	require.NoError(t, err)

	// A FAIL verdict is data in the report; Run itself succeeds.
	require.NoError(t, a.Run(context.Background()))

	summary := a.Summary()
	require.NotNil(t, summary)
	require.NotNil(t, summary.Results[0])
	assert.Equal(t, types.StatusFail, summary.Results[0].Status)
	assert.NotEmpty(t, summary.Results[0].DiffPath)
}

func TestNewRejectsMissingCorpus(t *testing.T) {
	f := newFixture(t, "x\n")
	f.config.BytecodeDir = filepath.Join(t.TempDir(), "nope")

	_, err := New(context.Background(), f.config, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load test case corpora")
}

func TestNewRejectsMissingManifest(t *testing.T) {
	f := newFixture(t, "x\n")
	f.config.DriversConfig = filepath.Join(t.TempDir(), "absent.yaml")

	_, err := New(context.Background(), f.config, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create registry")
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New(context.Background(), nil, "test")
	require.Error(t, err)
}

func TestRuntimeErrorWrapping(t *testing.T) {
	inner := os.ErrNotExist
	err := NewRuntimeError(inner)

	assert.True(t, IsRuntimeError(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.False(t, IsRuntimeError(inner))
	assert.False(t, IsRuntimeError(nil))
}
