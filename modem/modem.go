package modem

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/looplab/fsm"
	"go.uber.org/atomic"
	"i4.energy/across/simmqtt/mqtt"
	"i4.energy/across/simmqtt/ring"
)

// Modem drives a SIM800-class cellular modem through its AT command
// sequences to a transparent TCP socket and speaks MQTT over it.
//
// All state lives here. Commands either encode and send at once or arm a
// sequencer and return; Tick, called periodically and whenever bytes
// arrive, advances the sequencers, classifies received bytes and reports
// outcomes through the Handler.
type Modem struct {
	config    Config
	logger    *slog.Logger
	handler   Handler
	clock     ring.Clock
	transport Transport
	resetLine ResetLine

	rx      *ring.Buffer
	uart    *uart
	decoder *mqtt.Decoder

	// cmdMu is the command-in-progress lock. Commands hold it while they
	// touch the UART; Tick skips its turn when it is taken.
	cmdMu sync.Mutex

	dataReady   atomic.Bool
	loopRunning atomic.Bool
	closed      atomic.Bool
	wake        chan struct{}
	done        chan struct{}

	state *fsm.FSM
	flags flags

	resetSeq progress
	tcpSeq   progress
	tcp      tcpParams

	connectDeadline time.Time
	connAckCode     mqtt.ConnectReturnCode
	pubAck          ackWait
	subAck          ackWait
	pingAck         ackWait
	lastPubAck      uint16
	lastSubAck      mqtt.SubAck

	inbound    mqtt.Message
	pubackOwed bool

	infoMu      sync.RWMutex
	localIP     string
	networkTime time.Time

	callbacks []func(Handler)
}

// ackWait is an outstanding acknowledgment. Only one of each kind can be
// pending since the link carries one request at a time.
type ackWait struct {
	id       uint16
	active   bool
	deadline time.Time
}

func (a *ackWait) arm(id uint16, deadline time.Time) {
	*a = ackWait{id: id, active: true, deadline: deadline}
}

// match consumes the wait when id is the one expected.
func (a *ackWait) match(id uint16) bool {
	if !a.active || a.id != id {
		return false
	}
	a.active = false
	return true
}

// New dials the transport and prepares the modem in the Idle state. No AT
// command is sent; call Reset to start the bring-up.
func New(ctx context.Context, config Config) (*Modem, error) {
	if config.dialer == nil {
		return nil, ErrNoDialer
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial modem: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	logger := config.logger.With("component", "modem")
	rx := ring.New(config.ringSize, ring.WithClock(config.clock))

	m := &Modem{
		config:    config,
		logger:    logger,
		handler:   config.handler,
		clock:     config.clock,
		transport: transport,
		resetLine: config.resetLine,
		rx:        rx,
		uart:      newUART(transport, rx, config.clock, logger),
		decoder:   mqtt.NewDecoder(rx, config.topicCapacity, config.payloadCapacity, config.frameTimeout),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
		state:     newStateMachine(logger),
	}
	if m.resetLine == nil {
		if rl, ok := transport.(ResetLine); ok {
			m.resetLine = rl
		}
	}
	return m, nil
}

// Loop runs the receive pump and the periodic tick until ctx is cancelled,
// the modem is closed or the transport fails. It returns nil after Close.
// Only one Loop may run at a time.
//
// The pump goroutine is the only reader of the transport. It pushes bytes
// into the receive ring, sets the data-ready latch and wakes the loop, which
// then ticks without waiting for the next period.
func (m *Modem) Loop(ctx context.Context) error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	if !m.loopRunning.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer m.loopRunning.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErrs := make(chan error, 1)
	go m.pump(ctx, readErrs)

	ticker := time.NewTicker(m.config.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case err := <-readErrs:
			if m.closed.Load() {
				return nil
			}
			return fmt.Errorf("read transport: %w", err)
		case <-ticker.C:
			m.Tick()
		case <-m.wake:
			m.Tick()
		}
	}
}

func (m *Modem) pump(ctx context.Context, errs chan<- error) {
	buf := make([]byte, 256)
	for {
		n, err := m.transport.Read(buf)
		if n > 0 {
			m.Receive(buf[:n])
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			errs <- err
			return
		}
	}
}

// Receive is the receive-path entry: it buffers p, sets the data-ready
// latch and wakes the loop. It never parses.
func (m *Modem) Receive(p []byte) {
	if _, err := m.rx.Write(p); err != nil {
		m.logger.Warn("Receive ring overrun", "dropped_total", m.rx.Overruns(), "error", err)
	}
	m.dataReady.Store(true)
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Close stops the loop and closes the transport. After Close every command
// returns ErrAlreadyClosed.
func (m *Modem) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	close(m.done)
	return m.transport.Close()
}

// Tick is the driver task. It returns at once when a command holds the
// lock. Otherwise it drains the receive ring, advances the active sequencer,
// expires overdue acknowledgments, answers an inbound QoS 1 publish and
// reports latched events. Handler methods run after the lock is released.
func (m *Modem) Tick() {
	if m.closed.Load() || !m.cmdMu.TryLock() {
		return
	}

	if m.dataReady.Swap(false) {
		if m.drain() {
			m.dataReady.Store(true)
		}
	}

	now := m.clock.Now()
	switch m.State() {
	case Resetting:
		switch m.stepReset(now) {
		case seqSuccess:
			m.logger.Info("Modem reset and attached")
			m.transition(evResetOK)
			m.queue(func(h Handler) { h.OnResetComplete(true) })
		case seqFailed:
			m.transition(evResetFail)
			m.queue(func(h Handler) { h.OnResetComplete(false) })
		}
	case TcpConnecting:
		switch m.stepTCP(now) {
		case seqSuccess:
			m.logger.Info("TCP socket open", "host", m.tcp.host, "port", m.tcp.port)
			m.transition(evTCPOK)
			m.queue(func(h Handler) { h.OnTCPConnect(true) })
		case seqFailed:
			m.transition(evTCPFail)
			m.queue(func(h Handler) { h.OnTCPConnect(false) })
		}
	}

	m.expire(now)

	// The PUBACK waits for an asynchronous payload to finish rather than
	// blocking the tick on the transmit lock.
	if m.pubackOwed && m.State() == MqttConnected {
		if m.uart.Busy() {
			m.logger.Debug("PUBACK deferred behind asynchronous payload", "id", m.inbound.MessageID)
		} else {
			if err := m.uart.Send(mqtt.AppendPuback(nil, m.inbound.MessageID)); err != nil {
				m.logger.Warn("PUBACK send failed", "id", m.inbound.MessageID, "error", err)
			}
			m.pubackOwed = false
		}
	}

	m.reportLatched()

	callbacks := m.callbacks
	m.callbacks = nil
	m.cmdMu.Unlock()

	for _, cb := range callbacks {
		cb(m.handler)
	}
}

// expire times out the CONNACK wait and releases overdue ack waits.
func (m *Modem) expire(now time.Time) {
	if m.State() == MqttConnecting && !m.flags.has(flagConnAck) && !now.Before(m.connectDeadline) {
		m.logger.Warn("No CONNACK received", "timeout", m.config.ackTimeout)
		m.transition(evConnAckTimeout)
		m.queue(func(h Handler) { h.OnConnAck(mqtt.ConnAckTimeout) })
	}
	for _, w := range []struct {
		name string
		wait *ackWait
	}{
		{"PUBACK", &m.pubAck},
		{"SUBACK", &m.subAck},
		{"PINGRESP", &m.pingAck},
	} {
		if w.wait.active && !now.Before(w.wait.deadline) {
			m.logger.Warn("Acknowledgment timed out", "kind", w.name, "id", w.wait.id)
			w.wait.active = false
		}
	}
}

// reportLatched consumes the MQTT-family latches and queues one callback per
// latch.
func (m *Modem) reportLatched() {
	if m.flags.take(flagConnAck) {
		code := m.connAckCode
		if code == mqtt.ReturnCodeConnAccepted {
			m.logger.Info("MQTT session established")
			m.transition(evConnAckOK)
		} else {
			m.logger.Warn("Broker rejected connection", "code", code)
			m.transition(evConnAckRejected)
		}
		m.queue(func(h Handler) { h.OnConnAck(code) })
	}
	if m.flags.take(flagPubAck) {
		id := m.lastPubAck
		m.queue(func(h Handler) { h.OnPubAck(id) })
	}
	if m.flags.take(flagSubAck) {
		sa := m.lastSubAck
		m.queue(func(h Handler) { h.OnSubAck(sa.PacketID, sa.QoS) })
	}
	if m.flags.take(flagPingResp) {
		m.queue(func(h Handler) { h.OnPingResp() })
	}
	if !m.pubackOwed && m.flags.take(flagPublish) {
		msg := m.inbound
		m.inbound = mqtt.Message{}
		m.queue(func(h Handler) { h.OnPublish(msg) })
	}
	if m.flags.take(flagClosed) {
		m.logger.Warn("Socket closed by peer")
		if m.transition(evSocketClosed) {
			m.clearSession()
			m.queue(func(h Handler) { h.OnSocketClosed() })
		}
	}
}

func (m *Modem) queue(cb func(Handler)) {
	m.callbacks = append(m.callbacks, cb)
}

// clearSession drops every MQTT-side record.
func (m *Modem) clearSession() {
	m.pubAck = ackWait{}
	m.subAck = ackWait{}
	m.pingAck = ackWait{}
	m.inbound = mqtt.Message{}
	m.pubackOwed = false
	m.flags.clear(flagsMQTT)
}

// lock takes the command lock for a foreground command.
func (m *Modem) lock() error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	m.cmdMu.Lock()
	return nil
}

func (m *Modem) invalidState(cmd string) error {
	return fmt.Errorf("%s in state %s: %w", cmd, m.State(), ErrInvalidState)
}

// Reset arms the reset-and-attach sequence. It is refused while a reset or
// TCP connect sequence is already running.
func (m *Modem) Reset() error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.cmdMu.Unlock()

	if !m.transition(evReset) {
		return m.invalidState("reset")
	}
	m.resetSeq.reset()
	m.resetSeq.next = m.clock.Now()
	m.tcpSeq.reset()
	m.clearSession()
	m.flags.clear(flagsAT)
	m.rx.Flush()
	m.logger.Info("Reset requested")
	return nil
}

// TCPConnect arms the TCP connect sequence. The modem must be in ResetOk.
func (m *Modem) TCPConnect(apn, host string, port uint16) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.cmdMu.Unlock()

	if !m.transition(evTCPConnect) {
		return m.invalidState("tcp connect")
	}
	m.tcp = tcpParams{apn: apn, host: host, port: port}
	m.tcpSeq.reset()
	m.flags.clear(flagsAT)
	m.logger.Info("TCP connect requested", "apn", apn, "host", host, "port", port)
	return nil
}

// MQTTConnect sends CONNECT. The socket must be open with no session. The
// outcome is reported through OnConnAck.
func (m *Modem) MQTTConnect(c mqtt.Connect) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.cmdMu.Unlock()

	if m.State() != TcpConnected {
		return m.invalidState("mqtt connect")
	}
	if c.ProtocolName == "" {
		c.ProtocolName = mqtt.DefaultProtocolName
	}
	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = mqtt.DefaultProtocolLevel
	}
	frame, err := c.AppendTo(nil)
	if err != nil {
		return fmt.Errorf("encode CONNECT: %w", err)
	}

	m.flags.clear(flagConnAck)
	if err := m.uart.Send(frame); err != nil {
		return fmt.Errorf("send CONNECT: %w", err)
	}
	m.transition(evMQTTConnect)
	m.connectDeadline = m.clock.Now().Add(m.config.ackTimeout)
	m.logger.Info("MQTT connect sent", "client_id", c.ClientID, "keep_alive", c.KeepAlive)
	return nil
}

// Publish sends a PUBLISH. QoS 1 messages are acknowledged through OnPubAck;
// only one may be outstanding. Payloads above the async threshold are
// written in the background.
func (m *Modem) Publish(topic string, payload []byte, dup bool, qos mqtt.QoS, retain bool, id uint16) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.cmdMu.Unlock()

	if m.State() != MqttConnected {
		return m.invalidState("publish")
	}
	if qos == mqtt.QoS1 && m.pubAck.active {
		return fmt.Errorf("publish id %d while waiting for PUBACK %d: %w", id, m.pubAck.id, ErrAckPending)
	}

	p := mqtt.Publish{Topic: topic, Payload: payload, Dup: dup, QoS: qos, Retain: retain, MessageID: id}
	head, err := p.AppendHeaderTo(nil)
	if err != nil {
		return fmt.Errorf("encode PUBLISH: %w", err)
	}

	if len(payload) > m.config.asyncThreshold {
		if err := m.uart.Send(head); err != nil {
			return fmt.Errorf("send PUBLISH header: %w", err)
		}
		m.uart.SendAsync(payload, nil)
	} else if err := m.uart.Send(append(head, payload...)); err != nil {
		return fmt.Errorf("send PUBLISH: %w", err)
	}

	if qos == mqtt.QoS1 {
		m.pubAck.arm(id, m.clock.Now().Add(m.config.ackTimeout))
	}
	m.logger.Debug("Published", "topic", topic, "bytes", len(payload), "qos", qos, "id", id)
	return nil
}

// Subscribe sends a single-topic SUBSCRIBE. The grant is reported through
// OnSubAck.
func (m *Modem) Subscribe(topic string, packetID uint16, qos mqtt.QoS) error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.cmdMu.Unlock()

	if m.State() != MqttConnected {
		return m.invalidState("subscribe")
	}
	if m.subAck.active {
		return fmt.Errorf("subscribe id %d while waiting for SUBACK %d: %w", packetID, m.subAck.id, ErrAckPending)
	}

	s := mqtt.Subscribe{PacketID: packetID, Topic: topic, QoS: qos}
	frame, err := s.AppendTo(nil)
	if err != nil {
		return fmt.Errorf("encode SUBSCRIBE: %w", err)
	}
	if err := m.uart.Send(frame); err != nil {
		return fmt.Errorf("send SUBSCRIBE: %w", err)
	}
	m.subAck.arm(packetID, m.clock.Now().Add(m.config.ackTimeout))
	m.logger.Debug("Subscribed", "topic", topic, "id", packetID, "qos", qos)
	return nil
}

// Ping sends PINGREQ. The reply is reported through OnPingResp.
func (m *Modem) Ping() error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.cmdMu.Unlock()

	if m.State() != MqttConnected {
		return m.invalidState("ping")
	}
	if m.pingAck.active {
		return fmt.Errorf("ping: %w", ErrAckPending)
	}
	if err := m.uart.Send(mqtt.AppendPingreq(nil)); err != nil {
		return fmt.Errorf("send PINGREQ: %w", err)
	}
	m.pingAck.arm(0, m.clock.Now().Add(m.config.ackTimeout))
	return nil
}

// Disconnect sends the disconnect frame and closes the session. The socket
// stays open.
func (m *Modem) Disconnect() error {
	if err := m.lock(); err != nil {
		return err
	}
	defer m.cmdMu.Unlock()

	if m.State() != MqttConnected {
		return m.invalidState("disconnect")
	}
	if err := m.uart.Send(mqtt.AppendDisconnect(nil, m.config.disconnectHeader)); err != nil {
		return fmt.Errorf("send DISCONNECT: %w", err)
	}
	m.transition(evDisconnect)
	m.clearSession()
	m.logger.Info("MQTT session closed")
	return nil
}

// State returns the current connection state.
func (m *Modem) State() ConnectionState {
	return parseState(m.state.Current())
}

// IsMQTTConnected reports whether an MQTT session is established.
func (m *Modem) IsMQTTConnected() bool {
	return m.State() == MqttConnected
}

// LocalIP returns the address assigned by the last TCP connect sequence.
func (m *Modem) LocalIP() string {
	m.infoMu.RLock()
	defer m.infoMu.RUnlock()
	return m.localIP
}

// NetworkTime returns the network time captured by the last reset sequence.
// It is zero when the modem did not report it.
func (m *Modem) NetworkTime() time.Time {
	m.infoMu.RLock()
	defer m.infoMu.RUnlock()
	return m.networkTime
}

// Overruns returns how many received bytes were dropped on a full ring.
func (m *Modem) Overruns() uint64 {
	return m.rx.Overruns()
}

func (m *Modem) setLocalIP(ip string) {
	m.infoMu.Lock()
	m.localIP = ip
	m.infoMu.Unlock()
}

func (m *Modem) setNetworkTime(t time.Time) {
	m.infoMu.Lock()
	m.networkTime = t
	m.infoMu.Unlock()
}
