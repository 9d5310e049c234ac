package types

import (
	"fmt"
	"time"
)

// Status represents the possible outcomes of running one driver against
// one test case.
type Status string

const (
	StatusPass       Status = "PASS"
	StatusFail       Status = "FAIL"
	StatusCrashed    Status = "CRASHED"
	StatusTimeout    Status = "TIMEOUT"
	StatusSkipped    Status = "SKIPPED"
	StatusInfraError Status = "INFRA_ERROR"
)

// AllStatuses lists every status in catalog order.
var AllStatuses = []Status{
	StatusPass,
	StatusFail,
	StatusCrashed,
	StatusTimeout,
	StatusSkipped,
	StatusInfraError,
}

// StatusInfo describes a status for report rendering.
type StatusInfo struct {
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Description string `json:"description"`
}

// StatusCatalog returns the rendering catalog keyed by status name.
func StatusCatalog() map[string]StatusInfo {
	return map[string]StatusInfo{
		string(StatusPass):       {Name: string(StatusPass), Symbol: "💚", Description: "Driver exited cleanly and its output matched the golden transcript"},
		string(StatusFail):       {Name: string(StatusFail), Symbol: "❌", Description: "Driver exited cleanly but its output differed from the golden transcript"},
		string(StatusCrashed):    {Name: string(StatusCrashed), Symbol: "🔥", Description: "Driver exited with a non-zero code or was killed by a signal"},
		string(StatusTimeout):    {Name: string(StatusTimeout), Symbol: "⌛", Description: "Driver ran past the wall-clock budget and its process group was terminated"},
		string(StatusSkipped):    {Name: string(StatusSkipped), Symbol: "⏭️", Description: "Test case is marked skipped for this driver in its metadata"},
		string(StatusInfraError): {Name: string(StatusInfraError), Symbol: "🚧", Description: "The driver could not be resolved or spawned; the test content was never evaluated"},
	}
}

// IsValidStatus reports whether s is a member of the closed status enum.
func IsValidStatus(s Status) bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// TestCaseKind distinguishes the two corpora.
type TestCaseKind string

const (
	TestCaseSource   TestCaseKind = "source"
	TestCaseBytecode TestCaseKind = "bytecode"
)

// DriverKind distinguishes the two driver invocation contracts.
type DriverKind string

const (
	DriverCompiler DriverKind = "compiler"
	DriverRuntime  DriverKind = "runtime"
)

// TestMetadata is the parsed content of a test case's metadata.json.
type TestMetadata struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
	// Skip excludes the case from every driver.
	Skip bool `json:"skip,omitempty"`
	// SkipDrivers excludes the case for the named drivers only.
	SkipDrivers []string `json:"skipDrivers,omitempty"`
	// Overrides marks a non-PASS status as the expected outcome for a
	// driver (e.g. "known failing on driver X"). The derived status is
	// still reported; a matching override flags the result as expected.
	Overrides map[string]Status `json:"overrides,omitempty"`
}

// SkippedFor reports whether the case is excluded for the named driver.
func (m TestMetadata) SkippedFor(driver string) bool {
	if m.Skip {
		return true
	}
	for _, name := range m.SkipDrivers {
		if name == driver {
			return true
		}
	}
	return m.Overrides[driver] == StatusSkipped
}

// TestCase is one input/golden-output fixture, independent of any driver.
// All paths are resolved and verified to exist at load time.
type TestCase struct {
	ID             string       `json:"name"`
	Kind           TestCaseKind `json:"kind"`
	SourcePath     string       `json:"sourcePath"`
	InputPath      string       `json:"inputPath"`
	TranscriptPath string       `json:"expectedOutputPath"`
	Metadata       TestMetadata `json:"metadata"`
}

// Driver is a thin external program exposing one of the two fixed
// invocation contracts for an implementation under test.
type Driver struct {
	Name    string     `json:"name"`
	Kind    DriverKind `json:"kind"`
	Command []string   `json:"command"`
	Version string     `json:"version,omitempty"`

	// Resolved is false when the underlying executable could not be
	// located at registry load time. Unresolved drivers stay in the
	// catalog so their pairs classify as INFRA_ERROR instead of
	// aborting the whole run.
	Resolved   bool   `json:"resolved"`
	ResolveErr string `json:"resolveError,omitempty"`
}

// AppliesTo reports whether the driver participates in the matrix for a
// test case of the given kind. Incompatible pairs are omitted from the
// matrix entirely.
func (d Driver) AppliesTo(kind TestCaseKind) bool {
	switch d.Kind {
	case DriverCompiler:
		return kind == TestCaseSource
	case DriverRuntime:
		return kind == TestCaseBytecode
	default:
		return false
	}
}

// ExecutionResult captures the outcome of one driver invocation on one
// test case. Created exactly once per pair per run and never mutated
// after creation.
type ExecutionResult struct {
	TestID     string `json:"example"`
	DriverName string `json:"program"`
	Status     Status `json:"status"`

	ExitCode   int           `json:"exitCode"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"durationMs"`
	TimedOut   bool          `json:"timedOut,omitempty"`
	// InfraError carries the precondition failure message when the
	// driver never actually ran (missing binary, spawn failure).
	InfraError string `json:"infraError,omitempty"`
	// Expected is set when the derived status matches a per-driver
	// override from the test case metadata.
	Expected bool `json:"expected,omitempty"`

	// Tails of the captured streams, for inline diagnosis.
	Stdout string `json:"-"`
	Stderr string `json:"-"`
	// Diff holds the unified diff text when Status is FAIL.
	Diff string `json:"-"`

	// On-disk artifacts, relative to the run directory, so a viewer can
	// lazily fetch full content.
	StdoutPath string `json:"stdout,omitempty"`
	StderrPath string `json:"stderr,omitempty"`
	DiffPath   string `json:"diff,omitempty"`
}

// Key returns the unique (test, driver) identity of the result.
func (r *ExecutionResult) Key() string {
	return fmt.Sprintf("%s/%s", r.TestID, r.DriverName)
}

// Summary is the final structured artifact describing the whole result
// matrix. It is immutable once written.
type Summary struct {
	Metadata SummaryMetadata       `json:"metadata"`
	Statuses map[string]StatusInfo `json:"statuses"`
	Programs []Driver              `json:"programs"`
	Examples []TestCase            `json:"examples"`
	// Results is dense: index = testIndex*len(Programs)+driverIndex.
	// Entries are null for kind-incompatible pairs, and for pairs whose
	// invocation never completed when the run was interrupted.
	Results []*ExecutionResult `json:"results"`
}

// SummaryMetadata records provenance for one run.
type SummaryMetadata struct {
	RunID      string        `json:"runId"`
	DurationMS int64         `json:"durationMs"`
	Duration   time.Duration `json:"-"`
	// Truncated is set when the run was interrupted before every pair
	// completed; missing entries are reported, not zero-filled.
	Truncated bool `json:"truncated,omitempty"`
}

// ResultIndex computes the dense matrix slot for a pair.
func ResultIndex(testIndex, driverCount, driverIndex int) int {
	return testIndex*driverCount + driverIndex
}

// Result returns the matrix entry for the pair, or nil when the pair was
// omitted or never completed.
func (s *Summary) Result(testIndex, driverIndex int) *ExecutionResult {
	idx := ResultIndex(testIndex, len(s.Programs), driverIndex)
	if idx < 0 || idx >= len(s.Results) {
		return nil
	}
	return s.Results[idx]
}
