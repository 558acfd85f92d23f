package modem

import (
	"io"
	"log/slog"
	"time"

	"i4.energy/across/simmqtt/mqtt"
	"i4.energy/across/simmqtt/ring"
)

// TCPTimeouts bounds each step of the TCP connect sequence. A step that sees
// no matching reply within its budget fails the sequence.
type TCPTimeouts struct {
	Shut    time.Duration // AT+CIPSHUT
	Mode    time.Duration // AT+CIPMODE=1
	APN     time.Duration // AT+CSTT
	Bearer  time.Duration // AT+CIICR
	IP      time.Duration // AT+CIFSR
	Start   time.Duration // AT+CIPSTART
	Connect time.Duration // CONNECT marker after CIPSTART
}

func (t *TCPTimeouts) setDefaults() {
	def := func(d *time.Duration, v time.Duration) {
		if *d == 0 {
			*d = v
		}
	}
	def(&t.Shut, 5*time.Second)
	def(&t.Mode, time.Second)
	def(&t.APN, time.Second)
	def(&t.Bearer, 5*time.Second)
	def(&t.IP, time.Second)
	def(&t.Start, time.Second)
	def(&t.Connect, 5*time.Second)
}

// Config holds the Modem settings. Build one with NewConfigBuilder.
type Config struct {
	dialer    Dialer
	resetLine ResetLine
	handler   Handler
	logger    *slog.Logger
	clock     ring.Clock

	tickInterval time.Duration
	ringSize     int

	resetHold      time.Duration
	resetSettle    time.Duration
	commandGap     time.Duration
	readyRetries   int
	readyInterval  time.Duration
	attachRetries  int
	attachInterval time.Duration
	clockWait      time.Duration
	tcp            TCPTimeouts

	lineTimeout  time.Duration
	frameTimeout time.Duration
	ackTimeout   time.Duration

	asyncThreshold   int
	topicCapacity    int
	payloadCapacity  int
	disconnectHeader byte
}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.handler == nil {
		c.handler = NopHandler{}
	}
	if c.logger == nil {
		c.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if c.clock == nil {
		c.clock = ring.SystemClock
	}
	if c.tickInterval == 0 {
		c.tickInterval = 10 * time.Millisecond
	}
	if c.ringSize == 0 {
		c.ringSize = ring.DefaultSize
	}
	if c.resetHold == 0 {
		c.resetHold = time.Second
	}
	if c.resetSettle == 0 {
		c.resetSettle = 5 * time.Second
	}
	if c.commandGap == 0 {
		c.commandGap = 500 * time.Millisecond
	}
	if c.readyRetries == 0 {
		c.readyRetries = 10
	}
	if c.readyInterval == 0 {
		c.readyInterval = 2 * time.Second
	}
	if c.attachRetries == 0 {
		c.attachRetries = 20
	}
	if c.attachInterval == 0 {
		c.attachInterval = 3 * time.Second
	}
	if c.clockWait == 0 {
		c.clockWait = time.Second
	}
	c.tcp.setDefaults()
	if c.lineTimeout == 0 {
		c.lineTimeout = 100 * time.Millisecond
	}
	if c.frameTimeout == 0 {
		c.frameTimeout = 500 * time.Millisecond
	}
	if c.ackTimeout == 0 {
		c.ackTimeout = 10 * time.Second
	}
	if c.asyncThreshold == 0 {
		c.asyncThreshold = 64
	}
	if c.topicCapacity == 0 {
		c.topicCapacity = 128
	}
	if c.payloadCapacity == 0 {
		c.payloadCapacity = 1024
	}
	if c.disconnectHeader == 0 {
		c.disconnectHeader = mqtt.HeaderPingresp
	}
}

// ConfigBuilder assembles a Config.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder returns a builder with every setting at its default.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

// Build applies defaults and validates the configuration.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	c.setDefaults()
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

// WithResetLine sets the reset line explicitly. Without it the transport is
// used when it implements ResetLine; otherwise the reset toggle is skipped.
func (b *ConfigBuilder) WithResetLine(r ResetLine) *ConfigBuilder {
	b.config.resetLine = r
	return b
}

func (b *ConfigBuilder) WithHandler(h Handler) *ConfigBuilder {
	b.config.handler = h
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// WithClock replaces the wall clock used for every deadline.
func (b *ConfigBuilder) WithClock(c ring.Clock) *ConfigBuilder {
	b.config.clock = c
	return b
}

func (b *ConfigBuilder) WithTickInterval(d time.Duration) *ConfigBuilder {
	b.config.tickInterval = d
	return b
}

func (b *ConfigBuilder) WithRingSize(n int) *ConfigBuilder {
	b.config.ringSize = n
	return b
}

// WithResetTiming sets how long the reset line is held low and how long the
// modem is left to boot afterwards.
func (b *ConfigBuilder) WithResetTiming(hold, settle time.Duration) *ConfigBuilder {
	b.config.resetHold = hold
	b.config.resetSettle = settle
	return b
}

// WithCommandGap sets the pause after the autobaud AT and the echo-off
// command.
func (b *ConfigBuilder) WithCommandGap(d time.Duration) *ConfigBuilder {
	b.config.commandGap = d
	return b
}

// WithReadyPolling bounds the wait for the SMS Ready line.
func (b *ConfigBuilder) WithReadyPolling(retries int, interval time.Duration) *ConfigBuilder {
	b.config.readyRetries = retries
	b.config.readyInterval = interval
	return b
}

// WithAttachPolling bounds the network attach queries.
func (b *ConfigBuilder) WithAttachPolling(retries int, interval time.Duration) *ConfigBuilder {
	b.config.attachRetries = retries
	b.config.attachInterval = interval
	return b
}

func (b *ConfigBuilder) WithClockWait(d time.Duration) *ConfigBuilder {
	b.config.clockWait = d
	return b
}

// WithTCPTimeouts sets the per-step budgets of the TCP connect sequence. Zero
// fields keep their defaults.
func (b *ConfigBuilder) WithTCPTimeouts(t TCPTimeouts) *ConfigBuilder {
	b.config.tcp = t
	return b
}

// WithLineTimeout bounds the wait for the terminator of a partial AT line.
func (b *ConfigBuilder) WithLineTimeout(d time.Duration) *ConfigBuilder {
	b.config.lineTimeout = d
	return b
}

// WithFrameTimeout bounds the wait for the rest of an MQTT frame once its
// first byte arrived.
func (b *ConfigBuilder) WithFrameTimeout(d time.Duration) *ConfigBuilder {
	b.config.frameTimeout = d
	return b
}

// WithAckTimeout bounds the wait for CONNACK, PUBACK, SUBACK and PINGRESP.
func (b *ConfigBuilder) WithAckTimeout(d time.Duration) *ConfigBuilder {
	b.config.ackTimeout = d
	return b
}

// WithAsyncThreshold sets the payload size above which PUBLISH payloads are
// written asynchronously.
func (b *ConfigBuilder) WithAsyncThreshold(n int) *ConfigBuilder {
	b.config.asyncThreshold = n
	return b
}

// WithCaptureCapacity sets the inbound topic and payload buffer sizes.
func (b *ConfigBuilder) WithCaptureCapacity(topic, payload int) *ConfigBuilder {
	b.config.topicCapacity = topic
	b.config.payloadCapacity = payload
	return b
}

// WithDisconnectHeader sets the DISCONNECT header byte. The default 0xD0
// matches the deployed firmware; mqtt.HeaderDisconnect selects the
// protocol-standard 0xE0.
func (b *ConfigBuilder) WithDisconnectHeader(h byte) *ConfigBuilder {
	b.config.disconnectHeader = h
	return b
}
