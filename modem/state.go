package modem

import (
	"context"
	"log/slog"

	"github.com/looplab/fsm"
)

// ConnectionState is the single authoritative connection state. Below
// TcpConnected the serial stream carries AT text; from TcpConnected on it
// carries MQTT frames.
type ConnectionState int

const (
	Idle ConnectionState = iota
	Resetting
	ResetOk
	TcpConnecting
	TcpConnected
	MqttConnecting
	MqttConnected
)

var stateNames = [...]string{
	Idle:           "idle",
	Resetting:      "resetting",
	ResetOk:        "reset-ok",
	TcpConnecting:  "tcp-connecting",
	TcpConnected:   "tcp-connected",
	MqttConnecting: "mqtt-connecting",
	MqttConnected:  "mqtt-connected",
}

func (s ConnectionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "invalid"
	}
	return stateNames[s]
}

// Transparent reports whether the serial stream carries MQTT frames.
func (s ConnectionState) Transparent() bool {
	return s >= TcpConnected
}

func parseState(name string) ConnectionState {
	for i, n := range stateNames {
		if n == name {
			return ConnectionState(i)
		}
	}
	return Idle
}

// State machine events.
const (
	evReset           = "reset"
	evResetOK         = "reset_ok"
	evResetFail       = "reset_fail"
	evTCPConnect      = "tcp_connect"
	evTCPOK           = "tcp_ok"
	evTCPFail         = "tcp_fail"
	evMQTTConnect     = "mqtt_connect"
	evConnAckOK       = "connack_ok"
	evConnAckRejected = "connack_rejected"
	evConnAckTimeout  = "connack_timeout"
	evDisconnect      = "disconnect"
	evSocketClosed    = "socket_closed"
)

func names(states ...ConnectionState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = s.String()
	}
	return out
}

// newStateMachine returns the guarded transition table. A failed TCP connect
// or a rejected CONNACK falls back to ResetOk since the modem stays attached.
func newStateMachine(logger *slog.Logger) *fsm.FSM {
	return fsm.NewFSM(
		Idle.String(),
		fsm.Events{
			{Name: evReset, Src: names(Idle, ResetOk, TcpConnected, MqttConnecting, MqttConnected), Dst: Resetting.String()},
			{Name: evResetOK, Src: names(Resetting), Dst: ResetOk.String()},
			{Name: evResetFail, Src: names(Resetting), Dst: Idle.String()},
			{Name: evTCPConnect, Src: names(ResetOk), Dst: TcpConnecting.String()},
			{Name: evTCPOK, Src: names(TcpConnecting), Dst: TcpConnected.String()},
			{Name: evTCPFail, Src: names(TcpConnecting), Dst: ResetOk.String()},
			{Name: evMQTTConnect, Src: names(TcpConnected), Dst: MqttConnecting.String()},
			{Name: evConnAckOK, Src: names(MqttConnecting), Dst: MqttConnected.String()},
			{Name: evConnAckRejected, Src: names(MqttConnecting), Dst: ResetOk.String()},
			{Name: evConnAckTimeout, Src: names(MqttConnecting), Dst: TcpConnected.String()},
			{Name: evDisconnect, Src: names(MqttConnected), Dst: TcpConnected.String()},
			{Name: evSocketClosed, Src: names(TcpConnected, MqttConnecting, MqttConnected), Dst: ResetOk.String()},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("State changed", "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
}

// transition fires event and reports whether the state machine accepted it.
func (m *Modem) transition(event string) bool {
	if err := m.state.Event(context.Background(), event); err != nil {
		m.logger.Debug("Transition refused", "event", event, "state", m.state.Current(), "error", err)
		return false
	}
	return true
}
