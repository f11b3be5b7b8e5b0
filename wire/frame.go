package wire

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/pkg/errors"
)

// MinPadding is the minimum padding length mandated by RFC 4253 §6.
const MinPadding = 4

// MaxPacketLength bounds the decoded length field of an inbound packet,
// independent of any negotiated cipher. The RFC does not mandate a
// specific ceiling; spec §9 Open Questions recommends one to avoid
// allocating attacker-controlled amounts of memory before a MAC has even
// been checked.
const MaxPacketLength = 256 * 1024

// ErrPacketTooLarge is returned by CheckLength when the advertised length
// exceeds MaxPacketLength.
var ErrPacketTooLarge = errors.New("wire: packet length exceeds maximum")

// PaddingLength returns the padding length to use so that
// 1 (pad_len field) + len(payload) + padding is a multiple of blockSize,
// subject to a minimum of MinPadding bytes.
func PaddingLength(payloadLen, blockSize int) int {
	if blockSize < 8 {
		blockSize = 8
	}
	pad := blockSize - (payloadLen+5)%blockSize
	if pad < MinPadding {
		pad += blockSize
	}
	return pad
}

// EncodeFrame lays out an unencrypted packet per RFC 4253 §6:
//
//	length(uint32) | pad_len(uint8) | payload | padding
//
// The length field covers everything but itself. random controls whether
// padding bytes are drawn from crypto/rand (true once a cipher is active)
// or left zero (permitted only before the first key exchange).
func EncodeFrame(payload []byte, blockSize int, random bool) ([]byte, error) {
	padLen := PaddingLength(len(payload), blockSize)
	total := 1 + len(payload) + padLen

	out := make([]byte, 4+total)
	binary.BigEndian.PutUint32(out[0:4], uint32(total))
	out[4] = byte(padLen)
	copy(out[5:], payload)

	pad := out[5+len(payload):]
	if random {
		if _, err := rand.Read(pad); err != nil {
			return nil, errors.Wrap(err, "wire: generate padding")
		}
	}
	return out, nil
}

// DecodeFrame splits a fully-received unencrypted packet body (everything
// after the length field, i.e. pad_len|payload|padding) into its payload.
func DecodeFrame(body []byte) ([]byte, error) {
	if len(body) < 1 {
		return nil, errors.New("wire: frame body too short")
	}
	padLen := int(body[0])
	if 1+padLen > len(body) {
		return nil, errors.New("wire: invalid padding length")
	}
	return body[1 : len(body)-padLen], nil
}

// CheckLength validates a decoded length field before any allocation of a
// buffer sized by it.
func CheckLength(length uint32) error {
	if length == 0 {
		return errors.New("wire: zero-length packet")
	}
	if length > MaxPacketLength {
		return ErrPacketTooLarge
	}
	return nil
}
