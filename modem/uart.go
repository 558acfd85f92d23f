package modem

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"
	"i4.energy/across/simmqtt/at"
	"i4.energy/across/simmqtt/ring"
)

// maxCommandLen is the size of the scratch buffer formatted commands are
// built in.
const maxCommandLen = 512

// uart is the serial transport: send primitives over the Transport and
// bounded-wait read primitives over the receive ring.
type uart struct {
	w      io.Writer
	rx     *ring.Buffer
	clock  ring.Clock
	logger *slog.Logger

	// txMu serializes writes so an asynchronous payload and the next frame
	// never interleave on the wire.
	txMu    sync.Mutex
	txBusy  atomic.Bool
	scratch [maxCommandLen]byte
}

func newUART(w io.Writer, rx *ring.Buffer, clock ring.Clock, logger *slog.Logger) *uart {
	return &uart{w: w, rx: rx, clock: clock, logger: logger}
}

// Send writes p completely before returning.
func (u *uart) Send(p []byte) error {
	u.txMu.Lock()
	defer u.txMu.Unlock()
	return u.write(p)
}

// SendAsync hands p to a background writer and returns immediately. The
// transport is held until the transfer completes, so a following send waits
// for it. done, when not nil, receives the transfer result.
func (u *uart) SendAsync(p []byte, done func(error)) {
	u.txMu.Lock()
	u.txBusy.Store(true)
	buf := append([]byte(nil), p...)
	go func() {
		err := u.write(buf)
		u.txBusy.Store(false)
		u.txMu.Unlock()
		if err != nil {
			u.logger.Warn("Asynchronous send failed", "bytes", len(buf), "error", err)
		}
		if done != nil {
			done(err)
		}
	}()
}

// Busy reports whether an asynchronous transfer is still in flight.
func (u *uart) Busy() bool {
	return u.txBusy.Load()
}

// Sendf formats a command into the scratch buffer and sends it.
func (u *uart) Sendf(format string, args ...any) error {
	u.txMu.Lock()
	defer u.txMu.Unlock()
	b := fmt.Appendf(u.scratch[:0], format, args...)
	if len(b) > maxCommandLen {
		return fmt.Errorf("%w: %d bytes", ErrCommandTooLong, len(b))
	}
	return u.write(b)
}

// Command sends an AT command terminated by CR LF.
func (u *uart) Command(cmd string) error {
	return u.Sendf("%s"+at.CRLF, cmd)
}

func (u *uart) write(p []byte) error {
	for len(p) > 0 {
		n, err := u.w.Write(p)
		if err != nil {
			return fmt.Errorf("write %d bytes: %w", len(p), err)
		}
		if n == 0 {
			return fmt.Errorf("write %d bytes: %w", len(p), io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

// ReadLine consumes bytes up to a carriage return and drops a linefeed that
// directly follows it. Linefeeds elsewhere are skipped. At most max bytes are
// kept. complete is false when timeout elapsed before the terminator, in
// which case the bytes read so far are returned.
func (u *uart) ReadLine(max int, timeout time.Duration) (line string, complete bool) {
	var sb strings.Builder
	deadline := u.clock.Now().Add(timeout)
	for {
		c, err := u.rx.Pop()
		if err != nil {
			if !u.clock.Now().Before(deadline) {
				return sb.String(), false
			}
			u.rx.Wait(time.Millisecond)
			continue
		}
		switch c {
		case '\r':
			if next, err := u.rx.Peek(); err == nil && next == '\n' {
				u.rx.Pop()
			}
			return sb.String(), true
		case '\n':
			continue
		}
		if sb.Len() < max {
			sb.WriteByte(c)
		}
	}
}
