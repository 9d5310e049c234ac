package runner

import (
	"bytes"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DiffResult is the verdict of comparing actual driver output against
// the golden transcript.
type DiffResult struct {
	Equal bool
	Text  string
}

// Compare performs a line-based comparison of actual output against the
// expected transcript. Equality is byte-exact apart from a leading UTF-8
// BOM, which some golden files carry; no other normalization is applied.
// When unequal, Text holds a unified diff for display.
func Compare(expected, actual []byte, fromFile, toFile string) (DiffResult, error) {
	expected = bytes.TrimPrefix(expected, utf8BOM)
	actual = bytes.TrimPrefix(actual, utf8BOM)

	if bytes.Equal(expected, actual) {
		return DiffResult{Equal: true}, nil
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(expected)),
		B:        difflib.SplitLines(string(actual)),
		FromFile: fromFile,
		ToFile:   toFile,
		Context:  3,
	})
	if err != nil {
		return DiffResult{}, fmt.Errorf("computing diff: %w", err)
	}
	if text == "" {
		// The byte streams differ but line-normalize identically, which
		// happens when only the final newline differs.
		text = fmt.Sprintf("--- %s\n+++ %s\noutputs differ in final newline\n", fromFile, toFile)
	}

	return DiffResult{Equal: false, Text: text}, nil
}
