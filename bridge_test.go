package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"i4.energy/across/simmqtt/modem"
	"i4.energy/across/simmqtt/mqtt"
)

// fakeSession records the commands the bridge issues.
type fakeSession struct {
	mu    sync.Mutex
	calls []string
	err   error

	state       modem.ConnectionState
	localIP     string
	networkTime time.Time
	published   []mqtt.Publish
}

func (f *fakeSession) record(format string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeSession) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeSession) Reset() error { return f.record("reset") }

func (f *fakeSession) TCPConnect(apn, host string, port uint16) error {
	return f.record("tcp %s %s:%d", apn, host, port)
}

func (f *fakeSession) MQTTConnect(c mqtt.Connect) error {
	return f.record("connect %s flags=%02x keepalive=%d", c.ClientID, byte(c.Flags), c.KeepAlive)
}

func (f *fakeSession) Publish(topic string, payload []byte, dup bool, qos mqtt.QoS, retain bool, id uint16) error {
	if err := f.record("publish %s", topic); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, mqtt.Publish{Topic: topic, Payload: payload, QoS: qos, Retain: retain, MessageID: id})
	return nil
}

func (f *fakeSession) Subscribe(topic string, packetID uint16, qos mqtt.QoS) error {
	return f.record("subscribe %s id=%d qos=%d", topic, packetID, qos)
}

func (f *fakeSession) Ping() error { return f.record("ping") }

func (f *fakeSession) State() modem.ConnectionState { return f.state }

func (f *fakeSession) IsMQTTConnected() bool { return f.state == modem.MqttConnected }

func (f *fakeSession) LocalIP() string { return f.localIP }

func (f *fakeSession) NetworkTime() time.Time { return f.networkTime }

func (f *fakeSession) Overruns() uint64 { return 3 }

func newTestBridge(t *testing.T, configure ...func(*Config)) (*Bridge, *fakeSession) {
	t.Helper()
	config, err := LoadConfig(WithDefaults())
	if err != nil {
		t.Fatal(err)
	}
	config.BrokerHost = "broker.local"
	for _, c := range configure {
		c(config)
	}

	session := &fakeSession{}
	b := NewBridge(slog.New(slog.NewTextHandler(io.Discard, nil)), config)
	b.Session = session
	b.after = func(_ time.Duration, fn func()) { fn() }
	return b, session
}

func TestBridgeBringUp(t *testing.T) {
	b, session := newTestBridge(t, func(c *Config) {
		c.Topic = "cmd/#"
		c.Username = "u"
		c.Password = "p"
	})

	if err := b.Start(); err != nil {
		t.Fatalf("unexpected error from Start(): %v", err)
	}
	b.OnResetComplete(true)
	b.OnTCPConnect(true)
	b.OnConnAck(mqtt.ReturnCodeConnAccepted)

	want := []string{
		"reset",
		"tcp internet broker.local:1883",
		"connect simmqtt flags=c2 keepalive=60",
		"subscribe cmd/# id=1 qos=1",
	}
	got := session.Calls()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("calls:\n got %q\nwant %q", got, want)
	}
}

func TestBridgeRetries(t *testing.T) {
	tests := []struct {
		name  string
		event func(b *Bridge)
		want  string
	}{
		{name: "Reset failure", event: func(b *Bridge) { b.OnResetComplete(false) }, want: "reset"},
		{name: "TCP failure", event: func(b *Bridge) { b.OnTCPConnect(false) }, want: "tcp internet broker.local:1883"},
		{name: "CONNACK timeout", event: func(b *Bridge) { b.OnConnAck(mqtt.ConnAckTimeout) }, want: "reset"},
		{name: "CONNACK refused", event: func(b *Bridge) { b.OnConnAck(mqtt.ReturnCodeServerUnavailable) }, want: "tcp internet broker.local:1883"},
		{name: "Socket closed", event: func(b *Bridge) { b.OnSocketClosed() }, want: "tcp internet broker.local:1883"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, session := newTestBridge(t)
			tt.event(b)

			calls := session.Calls()
			if len(calls) != 1 || calls[0] != tt.want {
				t.Errorf("calls = %q, want [%q]", calls, tt.want)
			}
		})
	}
}

func TestBridgeNoTopicNoSubscribe(t *testing.T) {
	b, session := newTestBridge(t)
	b.OnConnAck(mqtt.ReturnCodeConnAccepted)
	if calls := session.Calls(); len(calls) != 0 {
		t.Errorf("expected no calls, got %q", calls)
	}
}

func TestBridgeConnectWithoutCredentials(t *testing.T) {
	b, session := newTestBridge(t)
	b.OnTCPConnect(true)

	want := "connect simmqtt flags=02 keepalive=60"
	if calls := session.Calls(); len(calls) != 1 || calls[0] != want {
		t.Errorf("calls = %q, want [%q]", calls, want)
	}
}

func TestBridgeRecent(t *testing.T) {
	b, _ := newTestBridge(t)
	for i := 0; i < maxRecent+5; i++ {
		b.OnPublish(mqtt.Message{Topic: "t", Payload: []byte(fmt.Sprint(i))})
	}

	recent := b.Recent()
	if len(recent) != maxRecent {
		t.Fatalf("expected %d messages, got %d", maxRecent, len(recent))
	}
	if got := string(recent[0].Payload); got != "5" {
		t.Errorf("expected oldest kept payload 5, got %s", got)
	}
}

func TestBridgeNextIDSkipsZero(t *testing.T) {
	b, _ := newTestBridge(t)
	b.nextID = 0xFFFF
	if id := b.NextID(); id != 1 {
		t.Errorf("expected wrap to 1, got %d", id)
	}
}

func TestBridgeKeepAlive(t *testing.T) {
	b, session := newTestBridge(t)
	session.state = modem.MqttConnected

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.KeepAlive(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for len(session.Calls()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	calls := session.Calls()
	if len(calls) == 0 || calls[0] != "ping" {
		t.Errorf("expected pings, got %q", calls)
	}
}

func TestBridgeKeepAliveCountsMissedPings(t *testing.T) {
	b, session := newTestBridge(t)
	session.state = modem.MqttConnected

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.KeepAlive(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for b.missedPings.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if b.missedPings.Load() == 0 {
		t.Fatalf("expected unanswered pings to be counted, calls %q", session.Calls())
	}

	b.OnPingResp()
	if b.missedPings.Load() != 0 || b.pingPending.Load() {
		t.Errorf("expected PINGRESP to clear the count, missed %d", b.missedPings.Load())
	}
}

func TestBridgeKeepAliveSkipsFailedPing(t *testing.T) {
	b, session := newTestBridge(t)
	session.state = modem.MqttConnected
	session.err = modem.ErrAckPending

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.KeepAlive(ctx, time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for len(session.Calls()) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if b.pingPending.Load() || b.missedPings.Load() != 0 {
		t.Errorf("a ping that was not sent must not be awaited, missed %d", b.missedPings.Load())
	}
}
