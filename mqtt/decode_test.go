package mqtt_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"i4.energy/across/simmqtt/mqtt"
	"i4.energy/across/simmqtt/ring"
)

const testFrameTimeout = 5 * time.Millisecond

func newDecoder(t *testing.T, wire []byte, topicCap, payloadCap int) *mqtt.Decoder {
	t.Helper()
	rx := ring.New(256)
	if _, err := rx.Write(wire); err != nil {
		t.Fatalf("failed to fill ring: %v", err)
	}
	return mqtt.NewDecoder(rx, topicCap, payloadCap, testFrameTimeout)
}

func TestDecodeControlFrames(t *testing.T) {
	tests := []struct {
		name string
		wire []byte
		want func(t *testing.T, p mqtt.Packet)
	}{
		{
			name: "CONNACK accepted",
			wire: []byte{0x20, 0x02, 0x00, 0x00},
			want: func(t *testing.T, p mqtt.Packet) {
				ca, ok := p.(*mqtt.ConnAck)
				if !ok || ca.ReturnCode != mqtt.ReturnCodeConnAccepted || ca.SessionPresent {
					t.Errorf("unexpected packet %#v", p)
				}
			},
		},
		{
			name: "CONNACK rejected with session present",
			wire: []byte{0x20, 0x02, 0x01, 0x05},
			want: func(t *testing.T, p mqtt.Packet) {
				ca, ok := p.(*mqtt.ConnAck)
				if !ok || ca.ReturnCode != mqtt.ReturnCodeUnauthorized || !ca.SessionPresent {
					t.Errorf("unexpected packet %#v", p)
				}
			},
		},
		{
			name: "PUBACK",
			wire: []byte{0x40, 0x02, 0x01, 0x02},
			want: func(t *testing.T, p mqtt.Packet) {
				pa, ok := p.(*mqtt.PubAck)
				if !ok || pa.MessageID != 0x0102 {
					t.Errorf("unexpected packet %#v", p)
				}
			},
		},
		{
			name: "SUBACK",
			wire: []byte{0x90, 0x03, 0x00, 0x01, 0x01},
			want: func(t *testing.T, p mqtt.Packet) {
				sa, ok := p.(*mqtt.SubAck)
				if !ok || sa.PacketID != 1 || sa.QoS != mqtt.QoS1 {
					t.Errorf("unexpected packet %#v", p)
				}
			},
		},
		{
			name: "SUBACK failure code",
			wire: []byte{0x90, 0x03, 0x00, 0x09, 0x80},
			want: func(t *testing.T, p mqtt.Packet) {
				sa, ok := p.(*mqtt.SubAck)
				if !ok || sa.PacketID != 9 || sa.QoS != mqtt.QoSSubfail {
					t.Errorf("unexpected packet %#v", p)
				}
			},
		},
		{
			name: "PINGRESP",
			wire: []byte{0xD0, 0x00},
			want: func(t *testing.T, p mqtt.Packet) {
				if _, ok := p.(*mqtt.PingResp); !ok {
					t.Errorf("unexpected packet %#v", p)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDecoder(t, tt.wire, 16, 16)
			p, err := d.Next()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.want(t, p)

			if _, err := d.Next(); !errors.Is(err, mqtt.ErrNoData) {
				t.Errorf("expected ErrNoData after the frame, got: %v", err)
			}
		})
	}
}

func TestDecodeInboundPublish(t *testing.T) {
	wire := []byte{0x32, 0x0A, 0x00, 0x03, 'a', '/', 'b', 0x00, 0x05, 'h', 'e', 'y'}
	d := newDecoder(t, wire, 16, 16)

	p, err := d.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m, ok := p.(*mqtt.Message)
	if !ok {
		t.Fatalf("expected *Message, got %T", p)
	}
	if m.Topic != "a/b" || string(m.Payload) != "hey" || m.QoS != mqtt.QoS1 || m.MessageID != 5 {
		t.Errorf("unexpected message %+v", m)
	}
	if m.Dup || m.Retain || m.Truncated {
		t.Errorf("unexpected flags %+v", m)
	}
}

func TestDecodePublishQoS0(t *testing.T) {
	wire := []byte{0x31, 0x05, 0x00, 0x01, 't', 'o', 'k'}
	d := newDecoder(t, wire, 16, 16)

	p, err := d.Next()
	if err != nil {
		t.Fatal(err)
	}
	m := p.(*mqtt.Message)
	if m.Topic != "t" || string(m.Payload) != "ok" || m.QoS != mqtt.QoS0 || !m.Retain || m.MessageID != 0 {
		t.Errorf("unexpected message %+v", m)
	}
}

func TestDecodeTruncatesToCapacity(t *testing.T) {
	topic := "abcdefgh"
	payload := "0123456789"
	p := mqtt.Publish{Topic: topic, Payload: []byte(payload), QoS: mqtt.QoS1, MessageID: 3}
	wire, err := p.AppendTo(nil)
	if err != nil {
		t.Fatal(err)
	}
	wire = append(wire, 0xD0, 0x00)

	d := newDecoder(t, wire, 4, 4)
	pkt, err := d.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	m := pkt.(*mqtt.Message)
	if m.Topic != "abcd" || string(m.Payload) != "0123" || m.MessageID != 3 {
		t.Errorf("unexpected message %+v", m)
	}
	if !m.Truncated {
		t.Error("expected Truncated to be set")
	}

	// The excess was discarded so the following frame is still aligned.
	next, err := d.Next()
	if err != nil {
		t.Fatalf("unexpected error on following frame: %v", err)
	}
	if _, ok := next.(*mqtt.PingResp); !ok {
		t.Errorf("expected PINGRESP after truncated publish, got %T", next)
	}
}

func TestDecodeErrors(t *testing.T) {
	t.Run("Empty source", func(t *testing.T) {
		d := newDecoder(t, nil, 4, 4)
		if _, err := d.Next(); !errors.Is(err, mqtt.ErrNoData) {
			t.Errorf("expected ErrNoData, got: %v", err)
		}
	})

	t.Run("Unknown header consumes one byte", func(t *testing.T) {
		d := newDecoder(t, []byte{0xA5, 0xD0, 0x00}, 4, 4)
		if _, err := d.Next(); !errors.Is(err, mqtt.ErrUnknownHeader) {
			t.Fatalf("expected ErrUnknownHeader, got: %v", err)
		}
		p, err := d.Next()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := p.(*mqtt.PingResp); !ok {
			t.Errorf("expected PINGRESP, got %T", p)
		}
	})

	t.Run("Malformed remaining length", func(t *testing.T) {
		d := newDecoder(t, []byte{0x30, 0x80, 0x80, 0x80, 0x80, 0x01}, 4, 4)
		_, err := d.Next()
		if !errors.Is(err, mqtt.ErrMalformedFrame) || !errors.Is(err, mqtt.ErrMalformedLength) {
			t.Errorf("expected malformed length, got: %v", err)
		}
	})

	t.Run("Short PUBACK", func(t *testing.T) {
		d := newDecoder(t, []byte{0x40, 0x02, 0x00}, 4, 4)
		if _, err := d.Next(); !errors.Is(err, mqtt.ErrMalformedFrame) {
			t.Errorf("expected ErrMalformedFrame, got: %v", err)
		}
	})

	t.Run("Wrong CONNACK length", func(t *testing.T) {
		d := newDecoder(t, []byte{0x20, 0x03, 0x00, 0x00}, 4, 4)
		if _, err := d.Next(); !errors.Is(err, mqtt.ErrMalformedFrame) {
			t.Errorf("expected ErrMalformedFrame, got: %v", err)
		}
	})

	t.Run("Publish length smaller than topic", func(t *testing.T) {
		d := newDecoder(t, []byte{0x30, 0x03, 0x00, 0x05, 'a'}, 8, 8)
		if _, err := d.Next(); !errors.Is(err, mqtt.ErrMalformedFrame) {
			t.Errorf("expected ErrMalformedFrame, got: %v", err)
		}
	})

	t.Run("Publish QoS 3", func(t *testing.T) {
		d := newDecoder(t, []byte{0x36, 0x00}, 8, 8)
		if _, err := d.Next(); !errors.Is(err, mqtt.ErrMalformedFrame) {
			t.Errorf("expected ErrMalformedFrame, got: %v", err)
		}
	})
}

func TestDecodeFramesWrittenByPaho(t *testing.T) {
	var wire bytes.Buffer

	ca := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
	ca.ReturnCode = packets.ErrRefusedBadUsernameOrPassword
	pub := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	pub.TopicName = "cmd/relay"
	pub.Qos = 1
	pub.MessageID = 77
	pub.Payload = []byte(`{"on":true}`)
	pa := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
	pa.MessageID = 12
	sa := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
	sa.MessageID = 13
	sa.ReturnCodes = []byte{0x01}
	pr := packets.NewControlPacket(packets.Pingresp)

	for _, cp := range []packets.ControlPacket{ca, pub, pa, sa, pr} {
		if err := cp.Write(&wire); err != nil {
			t.Fatalf("paho failed to write %s: %v", cp, err)
		}
	}

	d := newDecoder(t, wire.Bytes(), 32, 32)
	var got []mqtt.Packet
	for {
		p, err := d.Next()
		if errors.Is(err, mqtt.ErrNoData) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, p)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 frames, got %d", len(got))
	}

	if c := got[0].(*mqtt.ConnAck); c.ReturnCode != mqtt.ReturnCodeBadUserCredentials {
		t.Errorf("unexpected CONNACK code %v", c.ReturnCode)
	}
	if m := got[1].(*mqtt.Message); m.Topic != "cmd/relay" || m.MessageID != 77 || string(m.Payload) != `{"on":true}` {
		t.Errorf("unexpected message %+v", m)
	}
	if a := got[2].(*mqtt.PubAck); a.MessageID != 12 {
		t.Errorf("unexpected PUBACK id %d", a.MessageID)
	}
	if s := got[3].(*mqtt.SubAck); s.PacketID != 13 || s.QoS != mqtt.QoS1 {
		t.Errorf("unexpected SUBACK %+v", s)
	}
	if _, ok := got[4].(*mqtt.PingResp); !ok {
		t.Errorf("expected PINGRESP, got %T", got[4])
	}
}
