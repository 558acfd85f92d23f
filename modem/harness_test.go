package modem_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/simmqtt/modem"
	"i4.energy/across/simmqtt/mqtt"
)

const (
	testAPN  = "internet"
	testHost = "broker.local"
	testPort = 1883
	testIP   = "10.64.12.7"
)

// fakeClock moves forward by step on every reading so bounded waits always
// terminate, and by arbitrary amounts through Advance.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:  time.Date(2024, 5, 17, 8, 0, 0, 0, time.UTC),
		step: time.Millisecond,
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(c.step)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness plays the modem side: every AT command written is answered from
// the reply script through Modem.Receive.
type harness struct {
	t         *testing.T
	m         *modem.Modem
	transport *modem.TestTransport
	clock     *fakeClock
	handler   *modem.MockHandler

	mu      sync.Mutex
	replies map[string]string
}

func newHarness(t *testing.T, script *ReplyScript, configure ...func(*modem.ConfigBuilder)) *harness {
	t.Helper()
	ctrl := gomock.NewController(t)

	transport := modem.NewTestTransport()
	dialer := modem.NewMockDialer(ctrl)
	dialer.EXPECT().Dial(gomock.Any()).Return(transport, nil)
	handler := modem.NewMockHandler(ctrl)
	clock := newFakeClock()

	builder := modem.NewConfigBuilder().
		WithDialer(dialer).
		WithHandler(handler).
		WithClock(clock).
		WithLineTimeout(5 * time.Millisecond).
		WithFrameTimeout(5 * time.Millisecond)
	for _, c := range configure {
		c(builder)
	}
	config, err := builder.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	m, err := modem.New(context.Background(), config)
	if err != nil {
		t.Fatalf("unexpected error from New(): %v", err)
	}

	h := &harness{
		t:         t,
		m:         m,
		transport: transport,
		clock:     clock,
		handler:   handler,
		replies:   script.Build(),
	}
	transport.OnWrite(h.reply)
	t.Cleanup(func() { m.Close() })
	return h
}

func (h *harness) reply(p []byte) {
	cmd := strings.TrimRight(string(p), "\r\n")
	h.mu.Lock()
	r, ok := h.replies[cmd]
	h.mu.Unlock()
	if ok {
		h.m.Receive([]byte(r))
	}
}

// setReply changes or, with an empty reply, removes a scripted answer.
func (h *harness) setReply(cmd, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if reply == "" {
		delete(h.replies, cmd)
		return
	}
	h.replies[cmd] = reply
}

// tickUntil advances the clock by step and ticks until cond holds.
func (h *harness) tickUntil(cond func() bool, step time.Duration, maxTicks int) {
	h.t.Helper()
	for i := 0; i < maxTicks; i++ {
		if cond() {
			return
		}
		h.clock.Advance(step)
		h.m.Tick()
	}
	if !cond() {
		h.t.Fatalf("condition not met after %d ticks, state %s", maxTicks, h.m.State())
	}
}

func (h *harness) inState(s modem.ConnectionState) func() bool {
	return func() bool { return h.m.State() == s }
}

// feed delivers broker bytes and runs one tick.
func (h *harness) feed(b ...byte) {
	h.m.Receive(b)
	h.m.Tick()
}

func (h *harness) reset() {
	h.t.Helper()
	clock := h.handler.EXPECT().OnNetworkTime(gomock.Any())
	h.handler.EXPECT().OnResetComplete(true).After(clock)
	if err := h.m.Reset(); err != nil {
		h.t.Fatalf("unexpected error from Reset(): %v", err)
	}
	h.tickUntil(h.inState(modem.ResetOk), 250*time.Millisecond, 200)
}

func (h *harness) tcpConnect() {
	h.t.Helper()
	h.handler.EXPECT().OnIPAssigned(testIP)
	h.handler.EXPECT().OnTCPConnect(true)
	if err := h.m.TCPConnect(testAPN, testHost, testPort); err != nil {
		h.t.Fatalf("unexpected error from TCPConnect(): %v", err)
	}
	h.tickUntil(h.inState(modem.TcpConnected), 50*time.Millisecond, 200)
}

func testConnect() mqtt.Connect {
	return mqtt.Connect{
		Flags:     mqtt.FlagCleanSession | mqtt.FlagUsername | mqtt.FlagPassword,
		KeepAlive: 60,
		ClientID:  "sim800",
		Username:  "user",
		Password:  "secret",
	}
}

func (h *harness) mqttConnect() {
	h.t.Helper()
	h.handler.EXPECT().OnConnAck(mqtt.ReturnCodeConnAccepted)
	if err := h.m.MQTTConnect(testConnect()); err != nil {
		h.t.Fatalf("unexpected error from MQTTConnect(): %v", err)
	}
	h.feed(0x20, 0x02, 0x00, 0x00)
	if !h.m.IsMQTTConnected() {
		h.t.Fatalf("expected MqttConnected, got %s", h.m.State())
	}
}

// connected brings the harness all the way to an MQTT session and forgets
// the bytes written on the way.
func connected(t *testing.T, configure ...func(*modem.ConfigBuilder)) *harness {
	t.Helper()
	h := newHarness(t, NewReplyScript().Reset().TCP(), configure...)
	h.reset()
	h.tcpConnect()
	h.mqttConnect()
	h.transport.Clear()
	return h
}
