package kex

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
	"golang.org/x/crypto/curve25519"
)

// Curve25519KeyPair implements curve25519-sha256 (SPEC_FULL §2 domain
// stack: golang.org/x/crypto, already a teacher dependency, ships this
// primitive and OpenSSH prefers it over the NIST curves in practice).
type Curve25519KeyPair struct {
	priv [32]byte
	Q    []byte
}

// NewCurve25519KeyPair generates an ephemeral X25519 key pair.
func NewCurve25519KeyPair() (*Curve25519KeyPair, error) {
	var priv [32]byte
	if _, err := rand.Read(priv[:]); err != nil {
		return nil, errors.Wrap(err, "kex: generate curve25519 private scalar")
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, errors.Wrap(err, "kex: derive curve25519 public value")
	}
	return &Curve25519KeyPair{priv: priv, Q: pub}, nil
}

// SharedSecret computes the X25519 shared secret with the server's public
// value, returned as the big-endian integer K.
func (kp *Curve25519KeyPair) SharedSecret(peerQ []byte) (*big.Int, error) {
	secret, err := curve25519.X25519(kp.priv[:], peerQ)
	if err != nil {
		return nil, errors.Wrap(err, "kex: curve25519 agreement")
	}
	return new(big.Int).SetBytes(secret), nil
}
