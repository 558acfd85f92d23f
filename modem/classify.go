package modem

import (
	"errors"
	"time"

	"i4.energy/across/simmqtt/at"
	"i4.energy/across/simmqtt/mqtt"
)

// maxLineLen bounds a captured AT line. Longer lines are truncated.
const maxLineLen = 128

// rxEvent is one unit produced by the receive classifier: a text line in AT
// mode, or a broker frame in transparent mode.
type rxEvent interface {
	rxEvent()
}

type lineEvent struct {
	line at.Line
}

type frameEvent struct {
	packet mqtt.Packet
}

func (lineEvent) rxEvent()  {}
func (frameEvent) rxEvent() {}

// next classifies buffered bytes into the next event using the grammar of
// the current state. ok is false when the ring is empty. A nil event with ok
// set means bytes were consumed without producing anything.
func (m *Modem) next(state ConnectionState) (ev rxEvent, ok bool) {
	c, err := m.rx.Peek()
	if err != nil {
		return nil, false
	}

	if !state.Transparent() {
		line, complete := m.uart.ReadLine(maxLineLen, m.config.lineTimeout)
		if !complete {
			m.logger.Debug("Partial line", "line", line)
		}
		if line == "" {
			return nil, true
		}
		return lineEvent{line: at.Classify(line)}, true
	}

	// In transparent mode the modem still reports a dropped socket as a text
	// line preceded by CR LF. Any other CR is noise and only that byte goes.
	if c == at.CR {
		if !m.closedAhead() {
			m.rx.Pop()
			m.logger.Debug("Discarded stray CR")
			return nil, true
		}
		m.rx.Pop()
		if next, err := m.rx.Peek(); err == nil && next == at.LF {
			m.rx.Pop()
		}
		line, _ := m.uart.ReadLine(maxLineLen, m.config.lineTimeout)
		return lineEvent{line: at.Classify(line)}, true
	}

	pkt, err := m.decoder.Next()
	switch {
	case errors.Is(err, mqtt.ErrNoData):
		return nil, false
	case err != nil:
		m.logger.Warn("Discarded broker bytes", "error", err)
		return nil, true
	}
	return frameEvent{packet: pkt}, true
}

// closedAhead reports whether the CR at the head of the ring starts a
// "CLOSED" line, optionally after a LF. Nothing is consumed. While the
// buffered bytes are a prefix of the marker it waits up to the line timeout
// for the rest.
func (m *Modem) closedAhead() bool {
	const marker = at.Closed + "\r"
	deadline := m.clock.Now().Add(m.config.lineTimeout)
	i, j := 1, 0
	for j < len(marker) {
		c, err := m.rx.PeekAt(i)
		if err != nil {
			if !m.clock.Now().Before(deadline) {
				return false
			}
			m.rx.Wait(time.Millisecond)
			continue
		}
		switch {
		case i == 1 && c == at.LF:
		case c == marker[j]:
			j++
		default:
			return false
		}
		i++
	}
	return true
}

// drain classifies and dispatches buffered bytes until the ring is empty or
// an inbound publish is waiting for delivery. It reports whether bytes were
// left behind.
func (m *Modem) drain() bool {
	for {
		if m.flags.has(flagPublish) {
			return m.rx.Len() > 0
		}
		ev, ok := m.next(m.State())
		if !ok {
			return false
		}
		if ev != nil {
			m.dispatch(ev)
		}
	}
}

// dispatch updates flags and records for one event.
func (m *Modem) dispatch(ev rxEvent) {
	switch ev := ev.(type) {
	case lineEvent:
		m.dispatchLine(ev.line)
	case frameEvent:
		m.dispatchFrame(ev.packet)
	}
}

func (m *Modem) dispatchLine(l at.Line) {
	state := m.State()
	if state.Transparent() {
		if l.Kind == at.KindClosed {
			m.flags.set(flagClosed)
		} else {
			m.logger.Debug("Ignored line in transparent mode", "line", l.Text)
		}
		return
	}

	switch l.Kind {
	case at.KindOK:
		m.flags.set(flagOK)
	case at.KindError:
		m.flags.set(flagError)
	case at.KindSMSReady:
		m.flags.set(flagSMSReady)
	case at.KindAttached:
		m.flags.set(flagAttached)
	case at.KindShutOK:
		m.flags.set(flagShutOK)
	case at.KindConnect:
		m.flags.set(flagConnect)
	case at.KindConnectFail:
		m.flags.set(flagConnectFail)
	case at.KindIP:
		m.flags.set(flagIP)
		m.setLocalIP(l.IP)
		ip := l.IP
		m.queue(func(h Handler) { h.OnIPAssigned(ip) })
	case at.KindClock:
		m.setNetworkTime(l.Time)
		t := l.Time
		m.queue(func(h Handler) { h.OnNetworkTime(t) })
	default:
		m.logger.Debug("Unrecognized line", "line", l.Text, "kind", l.Kind)
	}
}

func (m *Modem) dispatchFrame(pkt mqtt.Packet) {
	switch p := pkt.(type) {
	case *mqtt.ConnAck:
		if m.State() != MqttConnecting {
			m.logger.Debug("Unexpected CONNACK", "code", p.ReturnCode)
			return
		}
		m.connAckCode = p.ReturnCode
		m.flags.set(flagConnAck)

	case *mqtt.PubAck:
		if !m.pubAck.match(p.MessageID) {
			m.logger.Debug("Unmatched PUBACK", "id", p.MessageID, "pending", m.pubAck.active, "expected", m.pubAck.id)
			return
		}
		m.lastPubAck = p.MessageID
		m.flags.set(flagPubAck)

	case *mqtt.SubAck:
		if !m.subAck.match(p.PacketID) {
			m.logger.Debug("Unmatched SUBACK", "id", p.PacketID, "pending", m.subAck.active, "expected", m.subAck.id)
			return
		}
		m.lastSubAck = *p
		m.flags.set(flagSubAck)

	case *mqtt.PingResp:
		if !m.pingAck.active {
			m.logger.Debug("Unexpected PINGRESP")
			return
		}
		m.pingAck.active = false
		m.flags.set(flagPingResp)

	case *mqtt.Message:
		if p.Truncated {
			m.logger.Warn("Inbound publish truncated", "topic", p.Topic, "topic_capacity", m.config.topicCapacity, "payload_capacity", m.config.payloadCapacity)
		}
		m.inbound = *p
		m.pubackOwed = p.QoS == mqtt.QoS1
		if p.QoS > mqtt.QoS1 {
			m.logger.Warn("Inbound QoS 2 publish is not acknowledged", "topic", p.Topic, "id", p.MessageID)
		}
		m.flags.set(flagPublish)
	}
}
