// Package ring implements the fixed-capacity byte ring that sits between the
// modem receive path and the frame parsers.
//
// A single producer pushes bytes as they arrive from the UART and a single
// consumer drains them. Read and write cursors wrap modulo the capacity; a
// separate full flag distinguishes a full buffer from an empty one when the
// cursors coincide.
package ring

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
)

var (
	// ErrEmpty is returned by Pop and Peek when no byte is buffered.
	ErrEmpty = errors.New("ring buffer empty")

	// ErrFull is returned by Write when at least one byte had to be dropped
	// because the buffer was full.
	ErrFull = errors.New("ring buffer full")
)

// DefaultSize matches the largest receive buffer used on the modem board.
const DefaultSize = 1500

// pollInterval bounds a single wait inside PopN when no producer signal
// arrives.
const pollInterval = time.Millisecond

// Clock supplies the time used to compute PopN deadlines.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Buffer is a single-producer, single-consumer byte ring.
type Buffer struct {
	mu    sync.Mutex
	data  []byte
	read  int
	write int
	full  bool

	clock    Clock
	notify   chan struct{}
	overruns atomic.Uint64
}

// Option configures a Buffer.
type Option func(*Buffer)

// WithClock overrides the clock used for PopN deadlines.
func WithClock(c Clock) Option {
	return func(b *Buffer) {
		if c != nil {
			b.clock = c
		}
	}
}

// New returns an empty buffer holding at most size bytes. A non-positive
// size selects DefaultSize.
func New(size int, opts ...Option) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	b := &Buffer{
		data:   make([]byte, size),
		clock:  SystemClock,
		notify: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Cap returns the capacity of the buffer.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Len returns the number of buffered bytes.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lenLocked()
}

func (b *Buffer) lenLocked() int {
	switch {
	case b.full:
		return len(b.data)
	case b.write >= b.read:
		return b.write - b.read
	default:
		return len(b.data) - (b.read - b.write)
	}
}

// Push appends c. It reports false and counts an overrun when the buffer is
// full; unread bytes are never overwritten.
func (b *Buffer) Push(c byte) bool {
	b.mu.Lock()
	if b.full {
		b.mu.Unlock()
		b.overruns.Inc()
		return false
	}
	b.data[b.write] = c
	b.write = (b.write + 1) % len(b.data)
	b.full = b.write == b.read
	b.mu.Unlock()

	b.signal()
	return true
}

// Write pushes every byte of p. It implements io.Writer so a transport can be
// copied straight into the ring. The returned count excludes dropped bytes.
func (b *Buffer) Write(p []byte) (int, error) {
	n := 0
	for _, c := range p {
		if b.Push(c) {
			n++
		}
	}
	if n < len(p) {
		return n, ErrFull
	}
	return n, nil
}

// Pop removes and returns the oldest byte.
func (b *Buffer) Pop() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lenLocked() == 0 {
		return 0, ErrEmpty
	}
	c := b.data[b.read]
	b.read = (b.read + 1) % len(b.data)
	b.full = false
	return c, nil
}

// Peek returns the oldest byte without removing it.
func (b *Buffer) Peek() (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.lenLocked() == 0 {
		return 0, ErrEmpty
	}
	return b.data[b.read], nil
}

// PeekAt returns the byte i positions after the oldest one without removing
// anything. It fails with ErrEmpty when fewer than i+1 bytes are buffered.
func (b *Buffer) PeekAt(i int) (byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i < 0 || i >= b.lenLocked() {
		return 0, ErrEmpty
	}
	return b.data[(b.read+i)%len(b.data)], nil
}

// PopN waits until n bytes are buffered or timeout elapses, then moves up to
// n bytes into p. It returns the number of bytes copied, which is less than n
// only when the deadline passed first. n is clamped to len(p).
func (b *Buffer) PopN(p []byte, n int, timeout time.Duration) int {
	if n > len(p) {
		n = len(p)
	}
	deadline := b.clock.Now().Add(timeout)
	for b.Len() < n {
		if !b.clock.Now().Before(deadline) {
			break
		}
		b.wait(pollInterval)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	count := min(n, b.lenLocked())
	for i := 0; i < count; i++ {
		p[i] = b.data[b.read]
		b.read = (b.read + 1) % len(b.data)
	}
	if count > 0 {
		b.full = false
	}
	return count
}

// Flush discards every buffered byte by aligning the read cursor with the
// write cursor.
func (b *Buffer) Flush() {
	b.mu.Lock()
	b.read = b.write
	b.full = false
	b.mu.Unlock()
}

// Overruns returns how many pushed bytes were dropped on a full buffer.
func (b *Buffer) Overruns() uint64 {
	return b.overruns.Load()
}

// Wait blocks until a byte is pushed or d elapses.
func (b *Buffer) Wait(d time.Duration) {
	b.wait(d)
}

func (b *Buffer) wait(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-b.notify:
	case <-t.C:
	}
}

func (b *Buffer) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}
