// Package corpus discovers and validates the test case corpora.
//
// Each corpus root contains one subdirectory per test case. A case
// directory must hold the primary story artifact, an input script, a
// golden transcript and a metadata record; a missing or malformed file is
// a load-time error that aborts the run, not a per-test outcome.
package corpus

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/storyproof/story-acceptor/types"
)

const (
	SourceFilename     = "story.src"
	BytecodeFilename   = "story.bytecode"
	InputFilename      = "input.txt"
	TranscriptFilename = "transcript.txt"
	MetadataFilename   = "metadata.json"
)

// Config contains loader configuration.
type Config struct {
	Log log.Logger
	// SourceDir and BytecodeDir are the corpus roots. Either may be
	// empty, in which case that corpus contributes no cases.
	SourceDir   string
	BytecodeDir string
}

// Load scans both corpora and returns the ordered test case catalog.
// Ordering is lexicographic by directory name within each corpus, with
// the bytecode corpus first; the position of each case in the returned
// slice is its canonical index for the whole run.
func Load(cfg Config) ([]types.TestCase, error) {
	if cfg.Log == nil {
		cfg.Log = log.Root()
	}
	if cfg.SourceDir == "" && cfg.BytecodeDir == "" {
		return nil, fmt.Errorf("at least one corpus directory is required")
	}

	var cases []types.TestCase
	if cfg.BytecodeDir != "" {
		loaded, err := loadCorpus(cfg.Log, cfg.BytecodeDir, types.TestCaseBytecode)
		if err != nil {
			return nil, err
		}
		cases = append(cases, loaded...)
	}
	if cfg.SourceDir != "" {
		loaded, err := loadCorpus(cfg.Log, cfg.SourceDir, types.TestCaseSource)
		if err != nil {
			return nil, err
		}
		cases = append(cases, loaded...)
	}

	seen := make(map[string]string, len(cases))
	for _, tc := range cases {
		if prev, ok := seen[tc.ID]; ok {
			return nil, fmt.Errorf("duplicate test case id %q: %s and %s", tc.ID, prev, filepath.Dir(tc.SourcePath))
		}
		seen[tc.ID] = filepath.Dir(tc.SourcePath)
	}

	cfg.Log.Info("Loaded test case corpora", "cases", len(cases))
	return cases, nil
}

func loadCorpus(logger log.Logger, root string, kind types.TestCaseKind) ([]types.TestCase, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading corpus directory %s: %w", root, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	cases := make([]types.TestCase, 0, len(names))
	for _, name := range names {
		tc, err := loadCase(filepath.Join(root, name), name, kind)
		if err != nil {
			return nil, err
		}
		logger.Debug("Loaded test case", "id", tc.ID, "kind", tc.Kind)
		cases = append(cases, tc)
	}
	return cases, nil
}

func loadCase(dir, name string, kind types.TestCaseKind) (types.TestCase, error) {
	primary := SourceFilename
	if kind == types.TestCaseBytecode {
		primary = BytecodeFilename
	}

	tc := types.TestCase{
		ID:             name,
		Kind:           kind,
		SourcePath:     filepath.Join(dir, primary),
		InputPath:      filepath.Join(dir, InputFilename),
		TranscriptPath: filepath.Join(dir, TranscriptFilename),
	}

	for _, path := range []string{tc.SourcePath, tc.InputPath, tc.TranscriptPath} {
		if err := requireFile(path); err != nil {
			return types.TestCase{}, fmt.Errorf("test case %s: %w", dir, err)
		}
	}

	metadata, err := loadMetadata(filepath.Join(dir, MetadataFilename))
	if err != nil {
		return types.TestCase{}, fmt.Errorf("test case %s: %w", dir, err)
	}
	tc.Metadata = metadata

	return tc, nil
}

func loadMetadata(path string) (types.TestMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.TestMetadata{}, fmt.Errorf("reading %s: %w", MetadataFilename, err)
	}

	var meta types.TestMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return types.TestMetadata{}, fmt.Errorf("parsing %s: %w", MetadataFilename, err)
	}

	for driver, status := range meta.Overrides {
		if !types.IsValidStatus(status) {
			return types.TestMetadata{}, fmt.Errorf("parsing %s: unknown status %q in override for driver %q", MetadataFilename, status, driver)
		}
	}

	return meta, nil
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("missing required file %s", filepath.Base(path))
	}
	if info.IsDir() {
		return fmt.Errorf("required file %s is a directory", filepath.Base(path))
	}
	return nil
}
