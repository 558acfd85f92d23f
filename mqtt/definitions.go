/*
Package mqtt encodes the MQTT 3.1.1 client frames sent over the modem's
transparent socket and decodes the broker frames read back from the receive
ring.

Only the subset a constrained client needs is covered: CONNECT, PUBLISH,
SUBSCRIBE, PINGREQ, DISCONNECT and PUBACK outbound; CONNACK, PUBLISH, PUBACK,
SUBACK and PINGRESP inbound. QoS 2 is not supported.
*/
package mqtt

import "fmt"

// Fixed header bytes as they appear on the wire.
const (
	HeaderConnect    byte = 0x10
	HeaderConnack    byte = 0x20
	HeaderPublish    byte = 0x30
	HeaderPuback     byte = 0x40
	HeaderSubscribe  byte = 0x82
	HeaderSuback     byte = 0x90
	HeaderPingreq    byte = 0xC0
	HeaderPingresp   byte = 0xD0
	HeaderDisconnect byte = 0xE0
)

const (
	// MaxRemainingLength is the largest value four length bytes can carry.
	MaxRemainingLength = 268_435_455
	maxLengthBytes     = 4

	// DefaultProtocolName and DefaultProtocolLevel select MQTT 3.1.1.
	DefaultProtocolName  = "MQTT"
	DefaultProtocolLevel = 4

	// subackRemainingLength is a single-topic SUBACK: packet id plus one
	// granted QoS byte.
	subackRemainingLength = 3
)

// QoS is the quality of service of a message or subscription.
type QoS uint8

const (
	// QoS0 at most once delivery.
	QoS0 QoS = iota
	// QoS1 at least once delivery.
	QoS1
	// QoS2 exactly once delivery. Granted by brokers in SUBACK, never sent.
	QoS2
	// QoSSubfail marks a rejected subscription in SUBACK.
	QoSSubfail QoS = 0x80
)

// ConnectFlags is the CONNECT flags byte.
type ConnectFlags uint8

const (
	FlagCleanSession ConnectFlags = 1 << 1
	FlagWill         ConnectFlags = 1 << 2
	FlagWillQoS1     ConnectFlags = 1 << 3
	FlagWillQoS2     ConnectFlags = 1 << 4
	FlagWillRetain   ConnectFlags = 1 << 5
	FlagPassword     ConnectFlags = 1 << 6
	FlagUsername     ConnectFlags = 1 << 7
)

// Has reports whether every bit of f2 is set in f.
func (f ConnectFlags) Has(f2 ConnectFlags) bool {
	return f&f2 == f2
}

// ConnectReturnCode is the CONNACK return code.
type ConnectReturnCode uint8

const (
	ReturnCodeConnAccepted ConnectReturnCode = iota
	ReturnCodeUnacceptableProtocol
	ReturnCodeIdentifierRejected
	ReturnCodeServerUnavailable
	ReturnCodeBadUserCredentials
	ReturnCodeUnauthorized

	// ConnAckTimeout is never sent by a broker. It is reported locally when
	// no CONNACK arrived in time.
	ConnAckTimeout ConnectReturnCode = 0xFF
)

func (rc ConnectReturnCode) String() string {
	switch rc {
	case ReturnCodeConnAccepted:
		return "connection accepted"
	case ReturnCodeUnacceptableProtocol:
		return "unacceptable protocol version"
	case ReturnCodeIdentifierRejected:
		return "client identifier rejected"
	case ReturnCodeServerUnavailable:
		return "server unavailable"
	case ReturnCodeBadUserCredentials:
		return "bad user name or password"
	case ReturnCodeUnauthorized:
		return "not authorized"
	case ConnAckTimeout:
		return "no CONNACK received"
	default:
		return fmt.Sprintf("return code %d", uint8(rc))
	}
}
