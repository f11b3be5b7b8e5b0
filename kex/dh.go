package kex

import (
	"crypto/rand"
	"math/big"

	"github.com/pkg/errors"
)

// Group is a classic (finite-field) Diffie-Hellman group, as used by
// diffie-hellman-group{1,14}-sha1 (spec §4.3).
type Group struct {
	P *big.Int
	G *big.Int
}

// hex dumps of the well-known Oakley groups used by SSH.
var (
	group1P  = mustHex(oakleyGroup1Hex)
	group14P = mustHex(oakleyGroup14Hex)
)

// Group1 is the 1024-bit Oakley group 2 (diffie-hellman-group1-sha1).
func Group1() Group { return Group{P: group1P, G: big.NewInt(2)} }

// Group14 is the 2048-bit Oakley group (diffie-hellman-group14-sha1).
func Group14() Group { return Group{P: group14P, G: big.NewInt(2)} }

// GroupForKex returns the DH group for a negotiated kex algorithm name.
func GroupForKex(name string) (Group, error) {
	switch name {
	case DiffieHellmanGroup1SHA1:
		return Group1(), nil
	case DiffieHellmanGroup14SHA1:
		return Group14(), nil
	default:
		return Group{}, errors.Errorf("kex: %q is not a classic DH group", name)
	}
}

// DHKeyPair is a client-side ephemeral DH private exponent and its public
// value e = g^x mod p.
type DHKeyPair struct {
	group Group
	x     *big.Int
	E     *big.Int
}

// NewDHKeyPair generates a private exponent sized to the group and
// computes E.
func NewDHKeyPair(g Group) (*DHKeyPair, error) {
	// RFC 4253 recommends a private exponent with at least 2*keysize bits
	// of entropy; using the group order's bit length is the conventional
	// conservative choice.
	x, err := rand.Int(rand.Reader, g.P)
	if err != nil {
		return nil, errors.Wrap(err, "kex: generate DH private value")
	}
	if x.Sign() == 0 {
		x.SetInt64(1)
	}
	e := new(big.Int).Exp(g.G, x, g.P)
	return &DHKeyPair{group: g, x: x, E: e}, nil
}

// SharedSecret computes K = f^x mod p given the server's public value f.
func (kp *DHKeyPair) SharedSecret(f *big.Int) (*big.Int, error) {
	if f.Sign() <= 0 || f.Cmp(kp.group.P) >= 0 {
		return nil, errors.New("kex: server DH public value out of range")
	}
	return new(big.Int).Exp(f, kp.x, kp.group.P), nil
}

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("kex: invalid embedded prime")
	}
	return n
}

// Oakley group primes (RFC 2409 §6.2, RFC 3526 §3).
const oakleyGroup1Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74" +
	"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE65381FFFFFFFFFFFFFFFF"

const oakleyGroup14Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC74" +
	"020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFFFFFFFFFFFFFF"
