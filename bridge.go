package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/atomic"
	"i4.energy/across/simmqtt/modem"
	"i4.energy/across/simmqtt/mqtt"
)

// Session is the part of the modem the bridge and the HTTP server drive.
type Session interface {
	Reset() error
	TCPConnect(apn, host string, port uint16) error
	MQTTConnect(c mqtt.Connect) error
	Publish(topic string, payload []byte, dup bool, qos mqtt.QoS, retain bool, id uint16) error
	Subscribe(topic string, packetID uint16, qos mqtt.QoS) error
	Ping() error
	State() modem.ConnectionState
	IsMQTTConnected() bool
	LocalIP() string
	NetworkTime() time.Time
	Overruns() uint64
}

// maxRecent bounds the inbound messages kept for GET /messages.
const maxRecent = 32

// retryDelay is how long the bridge waits before repeating a failed
// bring-up step.
const retryDelay = 5 * time.Second

// Bridge brings the modem up step by step from its callbacks and keeps the
// session alive. Each callback issues the next command; failures are retried
// after retryDelay.
type Bridge struct {
	modem.NopHandler

	Logger  *slog.Logger
	Config  *Config
	Session Session

	// after schedules fn; tests replace it to run retries synchronously.
	after func(d time.Duration, fn func())

	mu     sync.Mutex
	nextID uint16
	recent []mqtt.Message

	// pingPending is set when a keep-alive ping was sent and cleared by its
	// PINGRESP. missedPings counts consecutive pings left unanswered.
	pingPending atomic.Bool
	missedPings atomic.Int64
}

// NewBridge returns a bridge for config. Session must be set before the
// first callback arrives.
func NewBridge(logger *slog.Logger, config *Config) *Bridge {
	return &Bridge{
		Logger: logger,
		Config: config,
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
}

// Start requests the first reset.
func (b *Bridge) Start() error {
	b.Logger.Info("Starting modem bring-up")
	return b.Session.Reset()
}

func (b *Bridge) retry(what string, fn func() error) {
	b.after(retryDelay, func() {
		if err := fn(); err != nil {
			b.Logger.Warn("Retry refused", "step", what, "error", err)
		}
	})
}

func (b *Bridge) tcpConnect() error {
	return b.Session.TCPConnect(b.Config.APN, b.Config.BrokerHost, uint16(b.Config.BrokerPort))
}

func (b *Bridge) connect() mqtt.Connect {
	c := mqtt.Connect{
		Flags:     mqtt.FlagCleanSession,
		KeepAlive: uint16(b.Config.KeepAlive / time.Second),
		ClientID:  b.Config.ClientID,
	}
	if b.Config.Username != "" {
		c.Flags |= mqtt.FlagUsername
		c.Username = b.Config.Username
		if b.Config.Password != "" {
			c.Flags |= mqtt.FlagPassword
			c.Password = b.Config.Password
		}
	}
	return c
}

// NextID returns the next non-zero packet identifier.
func (b *Bridge) NextID() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	if b.nextID == 0 {
		b.nextID = 1
	}
	return b.nextID
}

// Recent returns the latest inbound messages, oldest first.
func (b *Bridge) Recent() []mqtt.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]mqtt.Message(nil), b.recent...)
}

func (b *Bridge) OnResetComplete(ok bool) {
	if !ok {
		b.Logger.Warn("Modem reset failed, retrying", "delay", retryDelay)
		b.retry("reset", b.Session.Reset)
		return
	}
	if err := b.tcpConnect(); err != nil {
		b.Logger.Error("TCP connect refused", "error", err)
	}
}

func (b *Bridge) OnTCPConnect(ok bool) {
	if !ok {
		b.Logger.Warn("TCP connect failed, retrying", "delay", retryDelay)
		b.retry("tcp connect", b.tcpConnect)
		return
	}
	if err := b.Session.MQTTConnect(b.connect()); err != nil {
		b.Logger.Error("MQTT connect refused", "error", err)
	}
}

func (b *Bridge) OnConnAck(code mqtt.ConnectReturnCode) {
	switch code {
	case mqtt.ReturnCodeConnAccepted:
		b.Logger.Info("MQTT session up", "broker", b.Config.BrokerHost, "local_ip", b.Session.LocalIP())
		if b.Config.Topic == "" {
			return
		}
		if err := b.Session.Subscribe(b.Config.Topic, b.NextID(), mqtt.QoS1); err != nil {
			b.Logger.Error("Subscribe refused", "topic", b.Config.Topic, "error", err)
		}
	case mqtt.ConnAckTimeout:
		// The socket is still open but silent; start over.
		b.Logger.Warn("No CONNACK, resetting modem")
		b.retry("reset", b.Session.Reset)
	default:
		b.Logger.Warn("Broker refused session, reconnecting", "code", code)
		b.retry("tcp connect", b.tcpConnect)
	}
}

func (b *Bridge) OnSubAck(packetID uint16, granted mqtt.QoS) {
	if granted == mqtt.QoSSubfail {
		b.Logger.Warn("Subscription refused", "topic", b.Config.Topic, "id", packetID)
		return
	}
	b.Logger.Info("Subscribed", "topic", b.Config.Topic, "id", packetID, "qos", granted)
}

func (b *Bridge) OnPingResp() {
	b.pingPending.Store(false)
	b.missedPings.Store(0)
}

func (b *Bridge) OnPubAck(messageID uint16) {
	b.Logger.Debug("Publish acknowledged", "id", messageID)
}

func (b *Bridge) OnPublish(msg mqtt.Message) {
	b.Logger.Info("Message received", "topic", msg.Topic, "bytes", len(msg.Payload), "truncated", msg.Truncated)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recent = append(b.recent, msg)
	if len(b.recent) > maxRecent {
		b.recent = b.recent[len(b.recent)-maxRecent:]
	}
}

func (b *Bridge) OnSocketClosed() {
	b.Logger.Warn("Socket closed, reconnecting", "delay", retryDelay)
	b.retry("tcp connect", b.tcpConnect)
}

func (b *Bridge) OnIPAssigned(ip string) {
	b.Logger.Info("Bearer up", "local_ip", ip)
}

func (b *Bridge) OnNetworkTime(t time.Time) {
	b.Logger.Info("Network time", "time", t, "skew", time.Since(t).Round(time.Second))
}

// KeepAlive pings the broker every interval while a session is up, until
// ctx is done.
func (b *Bridge) KeepAlive(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !b.Session.IsMQTTConnected() {
				continue
			}
			if b.pingPending.Load() {
				b.Logger.Warn("No PINGRESP since last keep-alive", "missed", b.missedPings.Inc())
			}
			if err := b.Session.Ping(); err != nil {
				b.Logger.Warn("Ping not sent", "error", err)
				continue
			}
			b.pingPending.Store(true)
		}
	}
}
