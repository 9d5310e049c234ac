package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/storyproof/story-acceptor/types"
)

func TestClassify(t *testing.T) {
	equal := &DiffResult{Equal: true}
	unequal := &DiffResult{Equal: false, Text: "--- a\n+++ b\n"}

	tests := []struct {
		name    string
		skipped bool
		out     RawOutcome
		diff    *DiffResult
		want    types.Status
	}{
		{
			name: "clean exit with matching output passes",
			out:  RawOutcome{ExitCode: 0},
			diff: equal,
			want: types.StatusPass,
		},
		{
			name: "clean exit with differing output fails",
			out:  RawOutcome{ExitCode: 0},
			diff: unequal,
			want: types.StatusFail,
		},
		{
			name: "nil diff counts as a match",
			out:  RawOutcome{ExitCode: 0},
			want: types.StatusPass,
		},
		{
			name: "non-zero exit crashes regardless of output",
			out:  RawOutcome{ExitCode: 3},
			diff: equal,
			want: types.StatusCrashed,
		},
		{
			name: "timeout wins over exit code",
			out:  RawOutcome{ExitCode: -1, TimedOut: true},
			want: types.StatusTimeout,
		},
		{
			name: "spawn failure wins over timeout",
			out:  RawOutcome{SpawnErr: "binary missing", TimedOut: true},
			want: types.StatusInfraError,
		},
		{
			name:    "skip wins over everything",
			skipped: true,
			out:     RawOutcome{SpawnErr: "binary missing", TimedOut: true, ExitCode: 3},
			diff:    unequal,
			want:    types.StatusSkipped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.skipped, tt.out, tt.diff))
		})
	}
}
