package modem

import (
	"bytes"
	"io"
	"sync"
)

// TestTransport is an in-memory Transport for tests. Reads block until data
// is queued with SendData, like a serial port would. Writes are recorded and
// handed to an optional responder, which lets a test play the modem side of
// a command dialogue.
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	closed   bool
	written  bytes.Buffer
	writes   int
	onWrite  func(p []byte)
}

// NewTestTransport creates a new test transport for testing.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 10),
	}
}

// OnWrite registers fn to be called with a copy of every write. fn runs on
// the writing goroutine after the write was recorded.
func (t *TestTransport) OnWrite(fn func(p []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onWrite = fn
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	t.written.Write(p)
	t.writes++
	fn := t.onWrite
	t.mu.Unlock()

	if fn != nil {
		fn(bytes.Clone(p))
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}

// Written returns everything written since the last Clear.
func (t *TestTransport) Written() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return bytes.Clone(t.written.Bytes())
}

// Writes returns how many Write calls were made since the last Clear.
func (t *TestTransport) Writes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writes
}

// Clear forgets the recorded writes.
func (t *TestTransport) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written.Reset()
	t.writes = 0
}
