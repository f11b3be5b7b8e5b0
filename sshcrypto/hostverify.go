package sshcrypto

import (
	"crypto"
	"crypto/dsa" //lint:ignore SA1019 server host keys still use ssh-dss in the wild.
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"math/big"

	"github.com/pkg/errors"

	"github.com/qt-creator/qtc-ssh/wire"
)

// ParsedHostKey is a server host public key decoded from its wire blob
// (spec §4.2), keyed by algorithm so the caller can look it up in a
// HostKeyDatabase before trusting it.
type ParsedHostKey struct {
	Algorithm string
	Blob      []byte
}

// ParseHostKeyBlob reads the algorithm name prefix out of a server public
// key blob, as received in SSH_MSG_KEXDH_REPLY.
func ParseHostKeyBlob(blob []byte) (ParsedHostKey, error) {
	b := wire.NewBuffer(blob)
	algo, err := b.ConsumeString()
	if err != nil {
		return ParsedHostKey{}, errors.Wrap(err, "sshcrypto: read host key algorithm")
	}
	return ParsedHostKey{Algorithm: algo, Blob: blob}, nil
}

// VerifyHostSignature checks sig (an RFC 4253 §6.6 signature blob) against
// H using the public key encoded in kS. It returns an error if the
// algorithm is unsupported or the signature does not verify.
func VerifyHostSignature(kS, H, sig []byte) error {
	keyBuf := wire.NewBuffer(kS)
	algo, err := keyBuf.ConsumeString()
	if err != nil {
		return errors.Wrap(err, "sshcrypto: read host key algorithm")
	}

	sigBuf := wire.NewBuffer(sig)
	sigAlgo, err := sigBuf.ConsumeString()
	if err != nil {
		return errors.Wrap(err, "sshcrypto: read signature algorithm")
	}
	rawSig, err := sigBuf.ConsumeBytes()
	if err != nil {
		return errors.Wrap(err, "sshcrypto: read signature blob")
	}
	if sigAlgo != algo {
		return errors.Errorf("sshcrypto: signature algorithm %q does not match host key algorithm %q", sigAlgo, algo)
	}

	switch algo {
	case AlgoSSHRSA:
		// Wire order is e then n (RFC 4253 §6.6).
		e, err := keyBuf.ConsumeMPInt()
		if err != nil {
			return errors.Wrap(err, "sshcrypto: read rsa e")
		}
		n, err := keyBuf.ConsumeMPInt()
		if err != nil {
			return errors.Wrap(err, "sshcrypto: read rsa n")
		}
		pub := &rsa.PublicKey{N: n, E: int(e.Int64())}
		digest := sha1.Sum(H)
		return errors.Wrap(rsa.VerifyPKCS1v15(pub, crypto.SHA1, digest[:], rawSig), "sshcrypto: rsa host key signature")
	case AlgoSSHDSS:
		p, errP := keyBuf.ConsumeMPInt()
		q, errQ := keyBuf.ConsumeMPInt()
		g, errG := keyBuf.ConsumeMPInt()
		y, errY := keyBuf.ConsumeMPInt()
		if errP != nil || errQ != nil || errG != nil || errY != nil {
			return errors.New("sshcrypto: malformed ssh-dss host key")
		}
		if len(rawSig) != 40 {
			return errors.New("sshcrypto: malformed ssh-dss signature blob")
		}
		pub := &dsa.PublicKey{Parameters: dsa.Parameters{P: p, Q: q, G: g}, Y: y}
		r := new(big.Int).SetBytes(rawSig[:20])
		s := new(big.Int).SetBytes(rawSig[20:])
		digest := sha1.Sum(H)
		if !dsa.Verify(pub, digest[:], r, s) {
			return errors.New("sshcrypto: dsa host key signature verification failed")
		}
		return nil
	case AlgoECDSANistp256, AlgoECDSANistp384, AlgoECDSANistp521:
		_, err := keyBuf.ConsumeString() // curve name
		if err != nil {
			return errors.Wrap(err, "sshcrypto: read ecdsa curve name")
		}
		q, err := keyBuf.ConsumeBytes()
		if err != nil {
			return errors.Wrap(err, "sshcrypto: read ecdsa point")
		}
		var curve elliptic.Curve
		var h crypto.Hash
		switch algo {
		case AlgoECDSANistp256:
			curve, h = elliptic.P256(), crypto.SHA256
		case AlgoECDSANistp384:
			curve, h = elliptic.P384(), crypto.SHA384
		default:
			curve, h = elliptic.P521(), crypto.SHA512
		}
		x, y := elliptic.Unmarshal(curve, q)
		if x == nil {
			return errors.New("sshcrypto: invalid ecdsa host key point")
		}
		pub := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
		sigBuf2 := wire.NewBuffer(rawSig)
		r, errR := sigBuf2.ConsumeMPInt()
		s, errS := sigBuf2.ConsumeMPInt()
		if errR != nil || errS != nil {
			return errors.New("sshcrypto: malformed ecdsa signature blob")
		}
		digest := hashWith(h, H)
		if !ecdsa.Verify(pub, digest, r, s) {
			return errors.New("sshcrypto: ecdsa host key signature verification failed")
		}
		return nil
	default:
		return errors.Errorf("sshcrypto: unsupported host key algorithm %q", algo)
	}
}
