package modem

import (
	"time"

	"i4.energy/across/simmqtt/mqtt"
)

//go:generate go tool mockgen -destination=mock_handler.go -package=modem . Handler

// Handler receives the outcome of every command and every unsolicited event.
// Methods are called from the goroutine running Tick, after the command lock
// has been released, so a method may issue the next command. None of the
// return values are consumed.
//
// Only the CONNACK wait reports a timeout. A PUBACK, SUBACK or PINGRESP that
// does not arrive within the ack timeout is logged and its slot released so
// the next command of that kind is accepted; no method is called.
type Handler interface {
	// OnResetComplete reports the end of the reset-and-attach sequence.
	OnResetComplete(ok bool)
	// OnTCPConnect reports the end of the TCP connect sequence.
	OnTCPConnect(ok bool)
	// OnConnAck reports the CONNACK return code, or mqtt.ConnAckTimeout.
	OnConnAck(code mqtt.ConnectReturnCode)
	OnPubAck(messageID uint16)
	OnSubAck(packetID uint16, granted mqtt.QoS)
	OnPingResp()
	// OnPublish delivers an inbound message. A QoS 1 message has already
	// been acknowledged.
	OnPublish(msg mqtt.Message)
	OnSocketClosed()
	OnIPAssigned(ip string)
	OnNetworkTime(t time.Time)
}

// NopHandler ignores every event. Embed it to implement only some methods.
type NopHandler struct{}

func (NopHandler) OnResetComplete(bool)             {}
func (NopHandler) OnTCPConnect(bool)                {}
func (NopHandler) OnConnAck(mqtt.ConnectReturnCode) {}
func (NopHandler) OnPubAck(uint16)                  {}
func (NopHandler) OnSubAck(uint16, mqtt.QoS)        {}
func (NopHandler) OnPingResp()                      {}
func (NopHandler) OnPublish(mqtt.Message)           {}
func (NopHandler) OnSocketClosed()                  {}
func (NopHandler) OnIPAssigned(string)              {}
func (NopHandler) OnNetworkTime(time.Time)          {}
