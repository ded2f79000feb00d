package polkadot

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

var ErrInvalidAddress = errors.New("invalid address")

var ss58Pre = []byte("SS58PRE")

func prefixBytes(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	return []byte{
		byte((prefix&0x00fc)>>2) | 0x40,
		byte(prefix>>8) | byte((prefix&0x0003)<<6),
	}
}

func checksum(data []byte) []byte {
	sum := blake2b.Sum512(append(append([]byte{}, ss58Pre...), data...))
	return sum[:2]
}

// EncodeSS58 encodes a 32-byte public key for the given network prefix.
func EncodeSS58(pub []byte, prefix uint16) (string, error) {
	if len(pub) != 32 {
		return "", fmt.Errorf("%w: public key length %d", ErrInvalidAddress, len(pub))
	}
	payload := append(prefixBytes(prefix), pub...)
	return base58.Encode(append(payload, checksum(payload)...)), nil
}

// DecodeSS58 returns the public key and network prefix of an SS58 address.
func DecodeSS58(addr string) ([]byte, uint16, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) < 35 {
		return nil, 0, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(raw))
	}

	var (
		prefix uint16
		plen   int
	)
	switch {
	case raw[0] < 64:
		prefix, plen = uint16(raw[0]), 1
	case raw[0] < 128:
		lower := (raw[0]<<2)&0xfc | raw[1]>>6
		upper := raw[1] & 0x3f
		prefix, plen = uint16(lower)|uint16(upper)<<8, 2
	default:
		return nil, 0, fmt.Errorf("%w: reserved prefix", ErrInvalidAddress)
	}

	if len(raw) != plen+32+2 {
		return nil, 0, fmt.Errorf("%w: length %d", ErrInvalidAddress, len(raw))
	}
	body := raw[:plen+32]
	if !bytes.Equal(checksum(body), raw[plen+32:]) {
		return nil, 0, fmt.Errorf("%w: bad checksum", ErrInvalidAddress)
	}
	return append([]byte(nil), raw[plen:plen+32]...), prefix, nil
}

// PublicKey accepts an SS58 address or a 0x-prefixed 32-byte hex key.
func PublicKey(addr string) ([]byte, error) {
	addr = strings.TrimSpace(addr)
	if strings.HasPrefix(addr, "0x") {
		b, err := hex.DecodeString(addr[2:])
		if err != nil || len(b) != 32 {
			return nil, fmt.Errorf("%w: hex account id", ErrInvalidAddress)
		}
		return b, nil
	}
	pub, _, err := DecodeSS58(addr)
	return pub, err
}

// Canonical re-encodes addr for prefix so one account always maps to one
// principal string.
func Canonical(addr string, prefix uint16) (string, error) {
	pub, err := PublicKey(addr)
	if err != nil {
		return "", err
	}
	return EncodeSS58(pub, prefix)
}

// ValidAddress reports whether addr decodes to a non-zero account id.
func ValidAddress(addr string) bool {
	pub, err := PublicKey(addr)
	return err == nil && !bytes.Equal(pub, make([]byte, 32))
}
