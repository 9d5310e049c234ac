package runner

import (
	"github.com/storyproof/story-acceptor/types"
)

// Classify maps a raw invocation outcome to its final status. First
// match wins:
//
//  1. case marked skipped for this driver -> SKIPPED
//  2. driver unresolved or spawn failed   -> INFRA_ERROR
//  3. wall-clock budget exceeded          -> TIMEOUT
//  4. non-zero exit or signal             -> CRASHED
//  5. exit 0, output matches transcript   -> PASS
//  6. exit 0, output differs              -> FAIL
//
// This table is the single source of truth for status derivation; no
// other code path assigns a Status. A nil diff with exit 0 means no
// comparison applies to the pair (compile-only pipelines) and counts as
// a match.
func Classify(skipped bool, out RawOutcome, diff *DiffResult) types.Status {
	switch {
	case skipped:
		return types.StatusSkipped
	case out.SpawnErr != "":
		return types.StatusInfraError
	case out.TimedOut:
		return types.StatusTimeout
	case out.ExitCode != 0:
		return types.StatusCrashed
	case diff == nil || diff.Equal:
		return types.StatusPass
	default:
		return types.StatusFail
	}
}
