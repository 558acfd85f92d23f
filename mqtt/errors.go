package mqtt

import "errors"

var (
	// ErrMalformedLength is returned when a remaining-length field carries
	// more than four bytes.
	ErrMalformedLength = errors.New("mqtt: malformed remaining length")

	// ErrLengthOverflow is returned when a length cannot be encoded in four
	// remaining-length bytes.
	ErrLengthOverflow = errors.New("mqtt: remaining length overflow")

	// ErrStringTooLong is returned when a length-prefixed field exceeds
	// 65535 bytes.
	ErrStringTooLong = errors.New("mqtt: string exceeds 65535 bytes")

	// ErrQoSNotSupported is returned for QoS values other than 0 and 1.
	ErrQoSNotSupported = errors.New("mqtt: QoS not supported")

	// ErrMalformedFrame is returned when a recognized frame does not carry
	// the expected layout or ends before the read timeout.
	ErrMalformedFrame = errors.New("mqtt: malformed frame")

	// ErrUnknownHeader is returned when the leading byte matches no
	// supported frame. The byte has been consumed.
	ErrUnknownHeader = errors.New("mqtt: unknown header byte")

	// ErrNoData is returned by Decoder.Next when the source is empty.
	ErrNoData = errors.New("mqtt: no data")
)
