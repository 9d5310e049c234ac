package runner

import (
	"sync"
	"time"
)

// RawOutcome is the unclassified result of a single process invocation.
type RawOutcome struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Duration time.Duration
	TimedOut bool
	// SpawnErr is set when the driver never actually ran (binary
	// missing, permission denied, stdin unreadable). Distinguished from
	// a crash so operators can tell a broken driver from a broken test.
	SpawnErr string
	// Canceled is set when a global interrupt tore down the invocation;
	// the pair is reported as missing rather than classified.
	Canceled bool
}

// Completed reports whether the process ran to voluntary exit.
func (o RawOutcome) Completed() bool {
	return o.SpawnErr == "" && !o.TimedOut && !o.Canceled
}

const defaultCaptureTailBytes = 1 * 1024 * 1024 // 1MB kept in memory per stream

// tailBuffer keeps only the last N bytes written to it so a driver that
// floods its streams cannot exhaust memory; the full prefix is still
// counted so truncation is detectable.
type tailBuffer struct {
	maxBytes int

	mu       sync.Mutex
	total    int64
	contents []byte
	overflow bool
}

func newTailBuffer(maxBytes int) *tailBuffer {
	if maxBytes <= 0 {
		maxBytes = defaultCaptureTailBytes
	}
	return &tailBuffer{
		maxBytes: maxBytes,
		contents: make([]byte, 0, min(maxBytes, 64*1024)),
	}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total += int64(len(p))
	b.contents = append(b.contents, p...)
	if len(b.contents) > b.maxBytes {
		b.contents = b.contents[len(b.contents)-b.maxBytes:]
		b.overflow = true
	}
	return len(p), nil
}

func (b *tailBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	cp := make([]byte, len(b.contents))
	copy(cp, b.contents)
	return cp
}

func (b *tailBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.overflow
}
