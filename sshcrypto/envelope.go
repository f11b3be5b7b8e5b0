package sshcrypto

import (
	"crypto/hmac"
	"hash"
	"math/big"

	"github.com/pkg/errors"

	"github.com/qt-creator/qtc-ssh/wire"
)

// Role characters from spec §4.2, used to derive the six per-direction
// keys from a single kex result.
const (
	RoleIVClientToServer        = 'A'
	RoleIVServerToClient        = 'B'
	RoleKeyClientToServer       = 'C'
	RoleKeyServerToClient       = 'D'
	RoleIntegrityClientToServer = 'E'
	RoleIntegrityServerToClient = 'F'
)

// DeriveKey implements the key-stretching construction from spec §4.2:
//
//	K1 = HASH(K || H || c || session_id)
//	K(n+1) = HASH(K || H || K1 || ... || Kn)
//	key = K1 || K2 || ...    (truncated to length)
func DeriveKey(newHash func() hash.Hash, K *big.Int, H, sessionID []byte, role byte, length int) []byte {
	kBuf := wire.NewBufferWithCapacity(64)
	kBuf.AppendMPInt(K)
	kEncoded := kBuf.Bytes()

	h := newHash()
	h.Write(kEncoded)
	h.Write(H)
	h.Write([]byte{role})
	h.Write(sessionID)
	key := h.Sum(nil)

	for len(key) < length {
		h := newHash()
		h.Write(kEncoded)
		h.Write(H)
		h.Write(key)
		key = append(key, h.Sum(nil)...)
	}
	return key[:length]
}

// direction holds the active cipher and MAC state for one traffic
// direction (outbound or inbound).
type direction struct {
	stream    streamCipher
	blockSize int
	macHash   hash.Hash
	macLength int
}

func (d *direction) active() bool { return d.stream != nil }

// Envelope is the pair of encrypt (outbound, client-to-server keys) and
// decrypt (inbound, server-to-client keys) facilities described in spec
// §4.2. Before the first NEWKEYS it is the identity transform with a
// zero-length MAC.
type Envelope struct {
	out direction
	in  direction

	seqOut uint32
	seqIn  uint32
}

// NewEnvelope returns an Envelope in its pre-kex, no-op state.
func NewEnvelope() *Envelope {
	return &Envelope{}
}

// KeySet is the six derived key-material octet strings for one key
// exchange, indexed by role character.
type KeySet map[byte][]byte

// Rekey installs freshly derived keys for cipher/MAC algorithm pairs
// negotiated by a (re)key exchange. It never resets sequence numbers: per
// spec §4.4, rekeying must not interrupt the packet sequence.
func (e *Envelope) Rekey(outCipher, outMAC string, inCipher, inMAC string, keys KeySet) error {
	outDir, err := buildDirection(outCipher, outMAC, keys[RoleIVClientToServer], keys[RoleKeyClientToServer], keys[RoleIntegrityClientToServer], true)
	if err != nil {
		return errors.Wrap(err, "sshcrypto: outbound rekey")
	}
	inDir, err := buildDirection(inCipher, inMAC, keys[RoleIVServerToClient], keys[RoleKeyServerToClient], keys[RoleIntegrityServerToClient], false)
	if err != nil {
		return errors.Wrap(err, "sshcrypto: inbound rekey")
	}
	e.out = outDir
	e.in = inDir
	return nil
}

func buildDirection(cipherName, macName string, iv, key, macKey []byte, encrypt bool) (direction, error) {
	spec, ok := cipherSpecs[cipherName]
	if !ok {
		return direction{}, errors.Errorf("sshcrypto: unknown cipher %q", cipherName)
	}
	stream, err := spec.newStream(key[:spec.keySize], iv[:spec.blockSize], encrypt)
	if err != nil {
		return direction{}, err
	}
	macLen, err := MACLength(macName)
	if err != nil {
		return direction{}, err
	}
	macKeySize, err := MACKeySize(macName)
	if err != nil {
		return direction{}, err
	}
	h, err := newHMAC(macName, macKey[:macKeySize])
	if err != nil {
		return direction{}, err
	}
	return direction{stream: stream, blockSize: spec.blockSize, macHash: h, macLength: macLen}, nil
}

// OutBlockSize returns the active outbound cipher block size, or 8 (the
// RFC 4253 minimum) before the first key exchange.
func (e *Envelope) OutBlockSize() int {
	if e.out.active() {
		return e.out.blockSize
	}
	return 8
}

// InBlockSize mirrors OutBlockSize for the inbound direction.
func (e *Envelope) InBlockSize() int {
	if e.in.active() {
		return e.in.blockSize
	}
	return 8
}

// InMACLength returns the inbound MAC tag length, 0 before first kex.
func (e *Envelope) InMACLength() int { return e.in.macLength }

// OutMACLength returns the outbound MAC tag length, 0 before first kex.
func (e *Envelope) OutMACLength() int { return e.out.macLength }

// EncryptOutgoing encrypts framed (the unencrypted length|pad_len|payload|
// padding bytes) in place and returns the MAC to append after it. The
// sequence number is taken from, then incremented in, the Envelope.
func (e *Envelope) EncryptOutgoing(framed []byte) (mac []byte, err error) {
	seq := e.seqOut
	e.seqOut++

	mac = e.computeMAC(&e.out, seq, framed)

	if e.out.active() {
		e.out.stream.XORKeyStream(framed, framed)
	}
	return mac, nil
}

// DecryptIncoming decrypts ciphertext (the length|pad_len|payload|padding
// bytes, without the trailing MAC) in place, verifies mac against it in
// constant time, and advances the inbound sequence number. It returns an
// error if the MAC does not match.
func (e *Envelope) DecryptIncoming(ciphertext []byte, mac []byte) error {
	if e.in.active() {
		e.in.stream.XORKeyStream(ciphertext, ciphertext)
	}
	return e.VerifyIncoming(ciphertext, mac)
}

// DecryptBlock decrypts len(block) bytes of inbound ciphertext in place.
// The transport calls this directly, ahead of VerifyIncoming, when it must
// recover the packet_length field from the first cipher block before the
// rest of the packet has arrived off the wire.
func (e *Envelope) DecryptBlock(block []byte) {
	if e.in.active() {
		e.in.stream.XORKeyStream(block, block)
	}
}

// VerifyIncoming checks mac against plaintext (already decrypted, e.g. via
// DecryptBlock) and advances the inbound sequence number. Use this instead
// of DecryptIncoming when the caller decrypted the packet incrementally.
func (e *Envelope) VerifyIncoming(plaintext []byte, mac []byte) error {
	seq := e.seqIn
	e.seqIn++

	want := e.computeMAC(&e.in, seq, plaintext)
	if !hmac.Equal(want, mac) {
		return errors.New("sshcrypto: MAC verification failed")
	}
	return nil
}

func (e *Envelope) computeMAC(d *direction, seq uint32, unencrypted []byte) []byte {
	if d.macHash == nil {
		return nil
	}
	d.macHash.Reset()
	var seqBuf [4]byte
	seqBuf[0] = byte(seq >> 24)
	seqBuf[1] = byte(seq >> 16)
	seqBuf[2] = byte(seq >> 8)
	seqBuf[3] = byte(seq)
	d.macHash.Write(seqBuf[:])
	d.macHash.Write(unencrypted)
	return d.macHash.Sum(nil)
}
