package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -destination=mock_transport.go -package=modem . Transport,Dialer,ResetLine

// Transport represents an established, bidirectional byte stream to the
// cellular modem UART.
//
// A Transport is assumed to be already connected and ready for use. Before
// the TCP socket is open it carries AT command text; afterwards, in
// transparent mode, it carries raw MQTT frames. Typical implementations are
// serial ports or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to the modem.
//
// Dialer is used during modem construction only. Once a Transport is
// obtained, the Dialer is no longer needed.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may block and should
	// respect cancellation of ctx.
	Dial(ctx context.Context) (Transport, error)
}

// ResetLine drives the modem's hardware reset input. A Transport may
// implement it when the reset input is wired to a modem-control line of the
// serial adapter.
type ResetLine interface {
	SetResetLevel(high bool) error
}

// ResetPin selects which modem-control line of a serial adapter drives the
// modem reset input.
type ResetPin int

const (
	ResetNone ResetPin = iota
	ResetDTR
	ResetRTS
)

func (p ResetPin) String() string {
	switch p {
	case ResetDTR:
		return "dtr"
	case ResetRTS:
		return "rts"
	default:
		return "none"
	}
}

// ParseResetPin parses "dtr", "rts" or "none". The empty string is "none".
func ParseResetPin(s string) (ResetPin, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return ResetNone, nil
	case "dtr":
		return ResetDTR, nil
	case "rts":
		return ResetRTS, nil
	default:
		return ResetNone, fmt.Errorf("unknown reset pin %q", s)
	}
}

const (
	defaultBaudRate    = 115200
	defaultReadTimeout = 100 * time.Millisecond
)

// SerialDialer opens the modem over a local serial port using
// go.bug.st/serial.
type SerialDialer struct {
	PortName string
	BaudRate int
	// Mode overrides BaudRate and the 8N1 framing when set.
	Mode *serial.Mode
	// ReadTimeout bounds a single Read so the receive pump can observe
	// shutdown. Zero selects 100 ms.
	ReadTimeout time.Duration
	ResetPin    ResetPin
}

// Dial opens and configures the serial port.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("modem: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("modem: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud <= 0 {
			baud = defaultBaudRate
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}

	timeout := d.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", d.PortName, err)
	}

	switch d.ResetPin {
	case ResetDTR, ResetRTS:
		return &resetPort{Port: port, pin: d.ResetPin}, nil
	default:
		return port, nil
	}
}

// resetPort is a serial port whose DTR or RTS line is wired to the modem
// reset input.
type resetPort struct {
	serial.Port
	pin ResetPin
}

func (p *resetPort) SetResetLevel(high bool) error {
	if p.pin == ResetRTS {
		return p.SetRTS(high)
	}
	return p.SetDTR(high)
}
