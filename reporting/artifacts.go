// Package reporting persists run artifacts and assembles the summary.
//
// Each run gets its own directory, testrun-<runID>, holding the per-pair
// captured stdout/stderr/diff files and the summary.json the viewer
// loads. Results reference artifacts by paths relative to the run
// directory so the report stays relocatable.
package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/log"
)

const (
	RunDirectoryPrefix = "testrun-" // Standardized prefix for run directories
	SummaryFilename    = "summary.json"
)

// ArtifactWriter writes per-pair artifacts into a run directory.
// Concurrent use is safe as long as artifact names are distinct, which
// the per-pair naming scheme guarantees.
type ArtifactWriter struct {
	runDir string
	log    log.Logger
}

// NewArtifactWriter creates the run directory under baseDir.
func NewArtifactWriter(logger log.Logger, baseDir, runID string) (*ArtifactWriter, error) {
	if logger == nil {
		logger = log.Root()
	}
	runDir := filepath.Join(baseDir, RunDirectoryPrefix+runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("creating run directory %s: %w", runDir, err)
	}
	return &ArtifactWriter{runDir: runDir, log: logger}, nil
}

// RunDir returns the absolute run directory path.
func (w *ArtifactWriter) RunDir() string {
	return w.runDir
}

// WriteArtifact stores one artifact and returns its path relative to the
// run directory.
func (w *ArtifactWriter) WriteArtifact(name string, data []byte) (string, error) {
	name = sanitizeFilename(name)
	if err := os.WriteFile(filepath.Join(w.runDir, name), data, 0644); err != nil {
		return "", fmt.Errorf("writing artifact %s: %w", name, err)
	}
	return name, nil
}

// sanitizeFilename keeps artifact names flat and filesystem-safe.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", " ", "_")
	return replacer.Replace(name)
}
