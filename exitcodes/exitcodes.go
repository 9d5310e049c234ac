// Package exitcodes defines the standard exit codes used by story-acceptor.
package exitcodes

// Exit code constants used by story-acceptor
// These constants define the exit codes that the application uses to
// indicate various states when it exits:
//
// * Success (0): The run completed; per-pair failures are report data,
//   not tool failures
// * RuntimeErr (2): Load-time precondition failures (missing corpus
//   files, malformed metadata or manifest) and other runtime errors
const (
	Success    = 0 // Run completed
	RuntimeErr = 2 // Runtime errors or load-time precondition failures
)
