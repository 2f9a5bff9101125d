package auth

import (
	"errors"
	"strings"
)

const base32Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"

// ErrInvalidSecret is returned when a shared secret holds no decodable Base32 data
var ErrInvalidSecret = errors.New("invalid base32 secret")

var base32Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base32Alphabet); i++ {
		idx[base32Alphabet[i]] = int8(i)
	}
	return idx
}()

// Base32Encode encodes b with the RFC 4648 alphabet and no padding
func Base32Encode(b []byte) string {
	var sb strings.Builder
	sb.Grow((len(b)*8 + 4) / 5)

	var buffer uint32
	bits := 0
	for _, v := range b {
		buffer = buffer<<8 | uint32(v)
		bits += 8
		for bits >= 5 {
			sb.WriteByte(base32Alphabet[(buffer>>(bits-5))&0x1f])
			bits -= 5
		}
	}
	if bits > 0 {
		sb.WriteByte(base32Alphabet[(buffer<<(5-bits))&0x1f])
	}

	return sb.String()
}

// Base32Decode decodes s, ignoring case and any character outside the alphabet
// (spaces, dashes, padding). Trailing bits that do not fill a byte are dropped.
func Base32Decode(s string) ([]byte, error) {
	out := make([]byte, 0, len(s)*5/8)

	var buffer uint32
	bits := 0
	symbols := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		v := base32Index[c]
		if v < 0 {
			continue
		}
		symbols++
		buffer = buffer<<5 | uint32(v)
		bits += 5
		if bits >= 8 {
			out = append(out, byte(buffer>>(bits-8)))
			bits -= 8
		}
	}

	if symbols == 0 || len(out) == 0 {
		return nil, ErrInvalidSecret
	}

	return out, nil
}
