package kex

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"
	"math/big"

	"github.com/qt-creator/qtc-ssh/wire"
)

var hashTable = map[string]func() hash.Hash{
	DiffieHellmanGroup1SHA1:  sha1.New,
	DiffieHellmanGroup14SHA1: sha1.New,
	ECDHNistp256:             sha256.New,
	ECDHNistp384:             sha512.New384,
	ECDHNistp521:             sha512.New,
	Curve25519SHA256:         sha256.New,
}

// MsgNewKeys is the SSH_MSG_NEWKEYS message number.
const MsgNewKeys = 21

// ExchangeHashDH computes H for the classic DH methods (spec §4.3):
//
//	HASH(string(V_C) string(V_S) string(I_C) string(I_S) string(K_S)
//	     mpint(e) mpint(f) mpint(K))
func ExchangeHashDH(newHash func() hash.Hash, vC, vS, iC, iS, kS []byte, e, f, K *big.Int) []byte {
	b := wire.NewBufferWithCapacity(512)
	b.AppendString(string(vC))
	b.AppendString(string(vS))
	b.AppendBytes(iC)
	b.AppendBytes(iS)
	b.AppendBytes(kS)
	b.AppendMPInt(e)
	b.AppendMPInt(f)
	b.AppendMPInt(K)
	h := newHash()
	h.Write(b.Bytes())
	return h.Sum(nil)
}

// ExchangeHashECDH computes H for the ECDH and curve25519 methods (spec
// §4.3):
//
//	HASH(string(V_C) string(V_S) string(I_C) string(I_S) string(K_S)
//	     string(Q_C) string(Q_S) mpint(K))
func ExchangeHashECDH(newHash func() hash.Hash, vC, vS, iC, iS, kS, qC, qS []byte, K *big.Int) []byte {
	b := wire.NewBufferWithCapacity(512)
	b.AppendString(string(vC))
	b.AppendString(string(vS))
	b.AppendBytes(iC)
	b.AppendBytes(iS)
	b.AppendBytes(kS)
	b.AppendBytes(qC)
	b.AppendBytes(qS)
	b.AppendMPInt(K)
	h := newHash()
	h.Write(b.Bytes())
	return h.Sum(nil)
}

// HashForKex returns the hash constructor associated with a negotiated
// kex algorithm name, per spec §4.2: SHA-1 for the DH groups, SHA-256/
// 384/512 for the matching ECDH curve sizes.
func HashForKex(name string) func() hash.Hash {
	return hashTable[name]
}
