package broadcast

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"
	"unicode/utf8"
)

// maxUTFLen is the largest encoded length a 2-byte prefix can describe.
const maxUTFLen = 0xFFFF

// ErrTooLong is returned for strings whose modified UTF-8 form exceeds
// 65535 bytes.
var ErrTooLong = errors.New("string too long for writeUTF")

// AppendUTF appends s in Java DataOutput.writeUTF form: a big-endian uint16
// byte count followed by modified UTF-8. U+0000 is written as two bytes and
// characters outside the BMP as a surrogate pair of three-byte sequences.
func AppendUTF(dst []byte, s string) ([]byte, error) {
	var body []byte
	for _, r := range s {
		switch {
		case r == 0:
			body = append(body, 0xC0, 0x80)
		case r < 0x80:
			body = append(body, byte(r))
		case r < 0x800:
			body = append(body, 0xC0|byte(r>>6), 0x80|byte(r&0x3F))
		case r < 0x10000:
			body = appendUnit(body, uint16(r))
		default:
			hi, lo := utf16.EncodeRune(r)
			body = appendUnit(body, uint16(hi))
			body = appendUnit(body, uint16(lo))
		}
	}
	if len(body) > maxUTFLen {
		return dst, fmt.Errorf("%w: %d bytes", ErrTooLong, len(body))
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(body)))
	return append(dst, body...), nil
}

func appendUnit(b []byte, u uint16) []byte {
	return append(b, 0xE0|byte(u>>12), 0x80|byte((u>>6)&0x3F), 0x80|byte(u&0x3F))
}

// ReadUTF reads one writeUTF string.
func ReadUTF(r *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", fmt.Errorf("reading length: %w", err)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return "", fmt.Errorf("reading %d bytes: %w", n, err)
	}
	return decodeModified(body)
}

func decodeModified(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0:
			if i+1 >= len(b) || b[i+1]&0xC0 != 0x80 {
				return "", fmt.Errorf("malformed 2-byte sequence at %d", i)
			}
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0:
			if i+2 >= len(b) || b[i+1]&0xC0 != 0x80 || b[i+2]&0xC0 != 0x80 {
				return "", fmt.Errorf("malformed 3-byte sequence at %d", i)
			}
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			return "", fmt.Errorf("invalid byte 0x%02x at %d", c, i)
		}
	}
	runes := utf16.Decode(units)
	out := make([]byte, 0, len(runes))
	for _, r := range runes {
		out = utf8.AppendRune(out, r)
	}
	return string(out), nil
}
