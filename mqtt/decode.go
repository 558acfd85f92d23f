package mqtt

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Source is the byte stream a Decoder reads broker frames from. The receive
// ring satisfies it.
type Source interface {
	Peek() (byte, error)
	Pop() (byte, error)
	PopN(p []byte, n int, timeout time.Duration) int
}

// Packet is a decoded broker frame.
type Packet interface {
	packet()
}

// ConnAck is a CONNACK frame.
type ConnAck struct {
	SessionPresent bool
	ReturnCode     ConnectReturnCode
}

// PubAck is a PUBACK frame.
type PubAck struct {
	MessageID uint16
}

// SubAck is a single-topic SUBACK frame.
type SubAck struct {
	PacketID uint16
	QoS      QoS
}

// PingResp is a PINGRESP frame.
type PingResp struct{}

// Message is an inbound PUBLISH.
type Message struct {
	Topic     string
	Payload   []byte
	Dup       bool
	QoS       QoS
	Retain    bool
	MessageID uint16
	// Truncated is set when the topic or payload exceeded the decoder's
	// capacity and the excess was discarded.
	Truncated bool
}

func (*ConnAck) packet()  {}
func (*PubAck) packet()   {}
func (*SubAck) packet()   {}
func (*PingResp) packet() {}
func (*Message) packet()  {}

// Decoder classifies and reads broker frames from a Source. Topic and
// payload are captured into fixed-capacity buffers.
type Decoder struct {
	src     Source
	timeout time.Duration
	topic   []byte
	payload []byte
	scratch [64]byte
}

// NewDecoder returns a decoder that waits at most timeout for the rest of a
// frame once its first byte has been seen.
func NewDecoder(src Source, topicCap, payloadCap int, timeout time.Duration) *Decoder {
	return &Decoder{
		src:     src,
		timeout: timeout,
		topic:   make([]byte, topicCap),
		payload: make([]byte, payloadCap),
	}
}

// Next reads one frame. It returns ErrNoData when the source is empty. Any
// other error means the leading byte, and possibly more, was consumed
// without yielding a frame; the caller can keep calling Next to make
// progress through the stream.
func (d *Decoder) Next() (Packet, error) {
	h, err := d.src.Peek()
	if err != nil {
		return nil, ErrNoData
	}

	switch {
	case h>>4 == HeaderPublish>>4:
		return d.readPublish()
	case h == HeaderConnack:
		b, err := d.fixed(3, 0x02)
		if err != nil {
			return nil, err
		}
		return &ConnAck{SessionPresent: b[1]&0x01 != 0, ReturnCode: ConnectReturnCode(b[2])}, nil
	case h == HeaderPuback:
		b, err := d.fixed(3, 0x02)
		if err != nil {
			return nil, err
		}
		return &PubAck{MessageID: binary.BigEndian.Uint16(b[1:3])}, nil
	case h == HeaderSuback:
		b, err := d.fixed(4, subackRemainingLength)
		if err != nil {
			return nil, err
		}
		return &SubAck{PacketID: binary.BigEndian.Uint16(b[1:3]), QoS: QoS(b[3])}, nil
	case h == HeaderPingresp:
		if _, err := d.fixed(1, 0x00); err != nil {
			return nil, err
		}
		return &PingResp{}, nil
	default:
		d.src.Pop()
		return nil, fmt.Errorf("%w: %#02x", ErrUnknownHeader, h)
	}
}

// fixed consumes the header byte and n following bytes, checking that the
// first of them equals length.
func (d *Decoder) fixed(n int, length byte) ([]byte, error) {
	h, _ := d.src.Pop()
	b := d.scratch[:n]
	if got := d.src.PopN(b, n, d.timeout); got < n {
		return nil, fmt.Errorf("%w: %#02x frame short by %d bytes", ErrMalformedFrame, h, n-got)
	}
	if b[0] != length {
		return nil, fmt.Errorf("%w: %#02x frame remaining length %d", ErrMalformedFrame, h, b[0])
	}
	return b, nil
}

func (d *Decoder) readPublish() (Packet, error) {
	h, _ := d.src.Pop()
	m := &Message{
		Dup:    h&0x08 != 0,
		QoS:    QoS(h>>1) & 0x03,
		Retain: h&0x01 != 0,
	}
	if m.QoS > QoS2 {
		return nil, fmt.Errorf("%w: publish QoS 3", ErrMalformedFrame)
	}

	rl, err := DecodeRemainingLength(byteReader{d})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	b := d.scratch[:2]
	if d.src.PopN(b, 2, d.timeout) < 2 {
		return nil, fmt.Errorf("%w: publish topic length missing", ErrMalformedFrame)
	}
	topicLen := int(binary.BigEndian.Uint16(b))

	idLen := 0
	if m.QoS > QoS0 {
		idLen = 2
	}
	payloadLen := rl - 2 - topicLen - idLen
	if payloadLen < 0 {
		return nil, fmt.Errorf("%w: publish remaining length %d too small for topic of %d bytes", ErrMalformedFrame, rl, topicLen)
	}

	n, truncated, err := d.capture(d.topic, topicLen)
	if err != nil {
		return nil, err
	}
	m.Topic = string(d.topic[:n])
	m.Truncated = truncated

	if idLen > 0 {
		if d.src.PopN(b, 2, d.timeout) < 2 {
			return nil, fmt.Errorf("%w: publish message id missing", ErrMalformedFrame)
		}
		m.MessageID = binary.BigEndian.Uint16(b)
	}

	n, truncated, err = d.capture(d.payload, payloadLen)
	if err != nil {
		return nil, err
	}
	m.Payload = append([]byte(nil), d.payload[:n]...)
	m.Truncated = m.Truncated || truncated
	return m, nil
}

// capture reads want bytes, keeping at most len(dst) of them and discarding
// the rest.
func (d *Decoder) capture(dst []byte, want int) (int, bool, error) {
	keep := min(want, len(dst))
	if got := d.src.PopN(dst, keep, d.timeout); got < keep {
		return got, false, fmt.Errorf("%w: short by %d bytes", ErrMalformedFrame, keep-got)
	}
	excess := want - keep
	for excess > 0 {
		chunk := min(excess, len(d.scratch))
		got := d.src.PopN(d.scratch[:], chunk, d.timeout)
		if got < chunk {
			return keep, true, fmt.Errorf("%w: short by %d bytes", ErrMalformedFrame, excess-got)
		}
		excess -= got
	}
	return keep, want > keep, nil
}

type byteReader struct{ d *Decoder }

func (r byteReader) ReadByte() (byte, error) {
	var b [1]byte
	if r.d.src.PopN(b[:], 1, r.d.timeout) < 1 {
		return 0, io.ErrUnexpectedEOF
	}
	return b[0], nil
}
