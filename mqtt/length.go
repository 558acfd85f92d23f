package mqtt

import "io"

// AppendRemainingLength appends the base-128 encoding of n to dst. Each byte
// holds seven bits of magnitude with the high bit set while more follow.
func AppendRemainingLength(dst []byte, n int) ([]byte, error) {
	if n < 0 || n > MaxRemainingLength {
		return dst, ErrLengthOverflow
	}
	for {
		b := byte(n % 128)
		n /= 128
		if n > 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if n == 0 {
			return dst, nil
		}
	}
}

// RemainingLengthSize returns how many bytes AppendRemainingLength uses for n.
func RemainingLengthSize(n int) int {
	size := 1
	for n >= 128 && size < maxLengthBytes {
		n /= 128
		size++
	}
	return size
}

// DecodeRemainingLength reads a remaining-length field from r. A field that
// still has its continuation bit set after four bytes is rejected with
// ErrMalformedLength instead of being read further.
func DecodeRemainingLength(r io.ByteReader) (int, error) {
	value := 0
	multiplier := 1
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value += int(b&0x7F) * multiplier
		if b&0x80 == 0 {
			return value, nil
		}
		if multiplier == 128*128*128 {
			return 0, ErrMalformedLength
		}
		multiplier *= 128
	}
}
