package auth

import (
	"fmt"
	"math"
)

// Z85 is the text armor used for curve key material: every 4 bytes of binary
// become 5 printable characters, so a 32-byte key is a 40-character string.

const z85Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz" +
	"ABCDEFGHIJKLMNOPQRSTUVWXYZ.-:+=^!/*?&<>()[]{}@%$#"

var z85Decoder = func() [256]int8 {
	var table [256]int8
	for i := range table {
		table[i] = -1
	}
	for i := 0; i < len(z85Alphabet); i++ {
		table[z85Alphabet[i]] = int8(i)
	}
	return table
}()

func z85Encode(data []byte) (string, error) {
	if len(data)%4 != 0 {
		return "", fmt.Errorf("z85 input length %d not a multiple of 4: %w", len(data), ErrInvalidKey)
	}
	out := make([]byte, 0, len(data)/4*5)
	for i := 0; i < len(data); i += 4 {
		value := uint32(data[i])<<24 | uint32(data[i+1])<<16 |
			uint32(data[i+2])<<8 | uint32(data[i+3])
		var chunk [5]byte
		for j := 4; j >= 0; j-- {
			chunk[j] = z85Alphabet[value%85]
			value /= 85
		}
		out = append(out, chunk[:]...)
	}
	return string(out), nil
}

func z85Decode(text string) ([]byte, error) {
	if len(text)%5 != 0 {
		return nil, fmt.Errorf("z85 input length %d not a multiple of 5: %w", len(text), ErrInvalidKey)
	}
	out := make([]byte, 0, len(text)/5*4)
	for i := 0; i < len(text); i += 5 {
		var value uint64
		for j := 0; j < 5; j++ {
			digit := z85Decoder[text[i+j]]
			if digit < 0 {
				return nil, fmt.Errorf("z85 byte %q at position %d: %w", text[i+j], i+j, ErrInvalidKey)
			}
			value = value*85 + uint64(digit)
		}
		// A 5-char block encodes at most 4 bytes; anything larger is
		// non-canonical text that would otherwise alias another key.
		if value > math.MaxUint32 {
			return nil, fmt.Errorf("z85 block %q overflows 4 bytes: %w", text[i:i+5], ErrInvalidKey)
		}
		out = append(out,
			byte(value>>24), byte(value>>16), byte(value>>8), byte(value))
	}
	return out, nil
}
