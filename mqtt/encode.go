package mqtt

import (
	"encoding/binary"
	"math"
)

// Connect holds the CONNECT parameters. Username and Password are encoded
// only when the matching flag bit is set; the will topic and message only
// when FlagWill is set.
type Connect struct {
	ProtocolName    string
	ProtocolVersion byte
	Flags           ConnectFlags
	KeepAlive       uint16
	ClientID        string
	WillTopic       string
	WillMessage     []byte
	Username        string
	Password        string
}

// RemainingLength returns the CONNECT body size.
func (c *Connect) RemainingLength() int {
	n := 2 + len(c.ProtocolName) + 1 + 1 + 2 + 2 + len(c.ClientID)
	if c.Flags.Has(FlagWill) {
		n += 2 + len(c.WillTopic) + 2 + len(c.WillMessage)
	}
	if c.Flags.Has(FlagUsername) {
		n += 2 + len(c.Username)
	}
	if c.Flags.Has(FlagPassword) {
		n += 2 + len(c.Password)
	}
	return n
}

// AppendTo appends the encoded CONNECT frame to dst.
func (c *Connect) AppendTo(dst []byte) ([]byte, error) {
	dst = append(dst, HeaderConnect)
	dst, err := AppendRemainingLength(dst, c.RemainingLength())
	if err != nil {
		return dst, err
	}

	if dst, err = appendString(dst, c.ProtocolName); err != nil {
		return dst, err
	}
	dst = append(dst, c.ProtocolVersion, byte(c.Flags))
	dst = binary.BigEndian.AppendUint16(dst, c.KeepAlive)
	if dst, err = appendString(dst, c.ClientID); err != nil {
		return dst, err
	}
	if c.Flags.Has(FlagWill) {
		if dst, err = appendString(dst, c.WillTopic); err != nil {
			return dst, err
		}
		if dst, err = appendBytes(dst, c.WillMessage); err != nil {
			return dst, err
		}
	}
	if c.Flags.Has(FlagUsername) {
		if dst, err = appendString(dst, c.Username); err != nil {
			return dst, err
		}
	}
	if c.Flags.Has(FlagPassword) {
		if dst, err = appendString(dst, c.Password); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// Publish is an outbound application message.
type Publish struct {
	Topic     string
	Payload   []byte
	Dup       bool
	QoS       QoS
	Retain    bool
	MessageID uint16
}

// Header returns the PUBLISH fixed header byte.
func (p *Publish) Header() byte {
	h := HeaderPublish | byte(p.QoS)<<1
	if p.Dup {
		h |= 0x08
	}
	if p.Retain {
		h |= 0x01
	}
	return h
}

// RemainingLength returns the PUBLISH body size.
func (p *Publish) RemainingLength() int {
	n := 2 + len(p.Topic) + len(p.Payload)
	if p.QoS > QoS0 {
		n += 2
	}
	return n
}

// AppendHeaderTo appends everything up to, but not including, the payload:
// fixed header, remaining length, topic and message id when QoS > 0. The
// payload is written separately so a large one can take the asynchronous
// transport path.
func (p *Publish) AppendHeaderTo(dst []byte) ([]byte, error) {
	if p.QoS > QoS1 {
		return dst, ErrQoSNotSupported
	}
	dst = append(dst, p.Header())
	dst, err := AppendRemainingLength(dst, p.RemainingLength())
	if err != nil {
		return dst, err
	}
	if dst, err = appendString(dst, p.Topic); err != nil {
		return dst, err
	}
	if p.QoS > QoS0 {
		dst = binary.BigEndian.AppendUint16(dst, p.MessageID)
	}
	return dst, nil
}

// AppendTo appends the complete PUBLISH frame to dst.
func (p *Publish) AppendTo(dst []byte) ([]byte, error) {
	dst, err := p.AppendHeaderTo(dst)
	if err != nil {
		return dst, err
	}
	return append(dst, p.Payload...), nil
}

// Subscribe is a single-topic SUBSCRIBE request.
type Subscribe struct {
	PacketID uint16
	Topic    string
	QoS      QoS
}

// RemainingLength returns the SUBSCRIBE body size.
func (s *Subscribe) RemainingLength() int {
	return 2 + 2 + len(s.Topic) + 1
}

// AppendTo appends the encoded SUBSCRIBE frame to dst.
func (s *Subscribe) AppendTo(dst []byte) ([]byte, error) {
	if s.QoS > QoS2 {
		return dst, ErrQoSNotSupported
	}
	dst = append(dst, HeaderSubscribe)
	dst, err := AppendRemainingLength(dst, s.RemainingLength())
	if err != nil {
		return dst, err
	}
	dst = binary.BigEndian.AppendUint16(dst, s.PacketID)
	if dst, err = appendString(dst, s.Topic); err != nil {
		return dst, err
	}
	return append(dst, byte(s.QoS)), nil
}

// AppendPingreq appends a PINGREQ frame.
func AppendPingreq(dst []byte) []byte {
	return append(dst, HeaderPingreq, 0x00)
}

// AppendDisconnect appends a two-byte disconnect frame with the given header
// byte.
func AppendDisconnect(dst []byte, header byte) []byte {
	return append(dst, header, 0x00)
}

// AppendPuback appends the PUBACK acknowledging message id.
func AppendPuback(dst []byte, id uint16) []byte {
	dst = append(dst, HeaderPuback, 0x02)
	return binary.BigEndian.AppendUint16(dst, id)
}

func appendString(dst []byte, s string) ([]byte, error) {
	if len(s) > math.MaxUint16 {
		return dst, ErrStringTooLong
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(s)))
	return append(dst, s...), nil
}

func appendBytes(dst []byte, b []byte) ([]byte, error) {
	if len(b) > math.MaxUint16 {
		return dst, ErrStringTooLong
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(b)))
	return append(dst, b...), nil
}
