package reporting

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"

	"github.com/storyproof/story-acceptor/runner"
	"github.com/storyproof/story-acceptor/types"
)

// BuildSummary assembles the immutable summary artifact from the
// catalogs and the dense result matrix. Pairs with no result (omitted
// for kind incompatibility, or never completed in a truncated run) stay
// null in the matrix rather than being zero-filled.
func BuildSummary(cases []types.TestCase, drivers []types.Driver, run *runner.RunResult) *types.Summary {
	return &types.Summary{
		Metadata: types.SummaryMetadata{
			RunID:      run.RunID,
			Duration:   run.Duration,
			DurationMS: run.Duration.Milliseconds(),
			Truncated:  run.Truncated,
		},
		Statuses: types.StatusCatalog(),
		Programs: drivers,
		Examples: cases,
		Results:  run.Matrix,
	}
}

// WriteSummary serializes the summary into the run directory.
func WriteSummary(logger log.Logger, runDir string, summary *types.Summary) (string, error) {
	if logger == nil {
		logger = log.Root()
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling summary: %w", err)
	}

	path := filepath.Join(runDir, SummaryFilename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing %s: %w", SummaryFilename, err)
	}

	logger.Info("Wrote run summary", "path", path, "results", len(summary.Results))
	return path, nil
}

// LoadSummary reads a previously written summary, for report serving and
// tooling. The returned value is treated as immutable.
func LoadSummary(path string) (*types.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading summary: %w", err)
	}

	var summary types.Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("parsing summary: %w", err)
	}
	return &summary, nil
}
