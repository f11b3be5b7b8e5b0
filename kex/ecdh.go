package kex

import (
	stdecdh "crypto/ecdh"
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

// ECDHKeyPair is a client-side ephemeral EC key pair for one of the
// ecdh-sha2-nistp{256,384,521} methods (spec §4.3).
type ECDHKeyPair struct {
	curve stdecdh.Curve
	priv  *stdecdh.PrivateKey
	Q     []byte // uncompressed point, sent as the client's public value
}

// CurveForKex maps a negotiated kex algorithm name to its NIST curve.
func CurveForKex(name string) (stdecdh.Curve, error) {
	switch name {
	case ECDHNistp256:
		return stdecdh.P256(), nil
	case ECDHNistp384:
		return stdecdh.P384(), nil
	case ECDHNistp521:
		return stdecdh.P521(), nil
	default:
		return nil, errors.Errorf("kex: %q is not an ECDH NIST curve", name)
	}
}

// NewECDHKeyPair generates an ephemeral key pair on curve.
func NewECDHKeyPair(curve stdecdh.Curve) (*ECDHKeyPair, error) {
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "kex: generate ECDH key pair")
	}
	return &ECDHKeyPair{curve: curve, priv: priv, Q: priv.PublicKey().Bytes()}, nil
}

// SharedSecret computes the ECDH shared secret with the server's public
// point peerQ, returned as the big-endian integer K per RFC 5656 §4.
func (kp *ECDHKeyPair) SharedSecret(peerQ []byte) (*big.Int, error) {
	peerPub, err := kp.curve.NewPublicKey(peerQ)
	if err != nil {
		return nil, errors.Wrap(err, "kex: invalid server ECDH public value")
	}
	secret, err := kp.priv.ECDH(peerPub)
	if err != nil {
		return nil, errors.Wrap(err, "kex: ECDH agreement")
	}
	return new(big.Int).SetBytes(secret), nil
}
