// Package kex implements SSH-2 algorithm negotiation (RFC 4253 §7.1) and
// the Diffie-Hellman and elliptic-curve Diffie-Hellman key exchange
// methods (spec §4.3).
package kex

import "github.com/pkg/errors"

// Kex method names.
const (
	DiffieHellmanGroup1SHA1  = "diffie-hellman-group1-sha1"
	DiffieHellmanGroup14SHA1 = "diffie-hellman-group14-sha1"
	ECDHNistp256             = "ecdh-sha2-nistp256"
	ECDHNistp384             = "ecdh-sha2-nistp384"
	ECDHNistp521             = "ecdh-sha2-nistp521"
	Curve25519SHA256         = "curve25519-sha256"
)

// Capabilities is a preference-ordered algorithm table, ported from the
// original SshCapabilities class: each list is walked in the client's
// order, and the first name also present in the server's list wins
// (spec §4.3).
type Capabilities struct {
	KexAlgorithms     []string
	HostKeyAlgorithms []string
	Ciphers           []string
	MACs              []string
	Compressions      []string
}

// Default returns the client's offered capability lists, ordered from
// most to least preferred.
func Default() Capabilities {
	return Capabilities{
		KexAlgorithms: []string{
			Curve25519SHA256,
			ECDHNistp256, ECDHNistp384, ECDHNistp521,
			DiffieHellmanGroup14SHA1,
			DiffieHellmanGroup1SHA1,
		},
		HostKeyAlgorithms: []string{
			"ssh-rsa",
			"ssh-dss",
		},
		Ciphers: []string{
			"aes256-ctr",
			"aes192-ctr",
			"aes128-ctr",
			"3des-ctr",
			"aes128-cbc",
			"3des-cbc",
		},
		MACs: []string{
			"hmac-sha2-512",
			"hmac-sha2-256",
			"hmac-sha1",
		},
		Compressions: []string{"none"},
	}
}

// FindBestMatch returns the first entry of mine also present in theirs,
// walking mine in preference order (spec §4.3). Disconnects with
// kex-failure are the caller's responsibility when ErrNoCommonAlgorithm
// is returned.
func FindBestMatch(mine, theirs []string) (string, error) {
	set := make(map[string]struct{}, len(theirs))
	for _, t := range theirs {
		set[t] = struct{}{}
	}
	for _, m := range mine {
		if _, ok := set[m]; ok {
			return m, nil
		}
	}
	return "", ErrNoCommonAlgorithm
}

// ErrNoCommonAlgorithm is returned by FindBestMatch when no name-list
// entry is shared; the transport converts this to a KEY_EXCHANGE_FAILED
// disconnect (spec §7).
var ErrNoCommonAlgorithm = errors.New("kex: client and server capabilities do not match")

// Negotiated holds the single algorithm selected per KEXINIT category.
type Negotiated struct {
	Kex               string
	HostKey           string
	CipherC2S         string
	CipherS2C         string
	MACC2S            string
	MACS2C            string
	CompressionC2S    string
	CompressionS2C    string
}

// Negotiate selects one algorithm per category by walking client's
// preference lists against the server's offered lists.
func Negotiate(client Capabilities, server KexInit) (Negotiated, error) {
	var n Negotiated
	var err error
	if n.Kex, err = FindBestMatch(client.KexAlgorithms, server.KexAlgorithms); err != nil {
		return n, err
	}
	if n.HostKey, err = FindBestMatch(client.HostKeyAlgorithms, server.ServerHostKeyAlgorithms); err != nil {
		return n, err
	}
	if n.CipherC2S, err = FindBestMatch(client.Ciphers, server.EncryptionAlgorithmsClientToServer); err != nil {
		return n, err
	}
	if n.CipherS2C, err = FindBestMatch(client.Ciphers, server.EncryptionAlgorithmsServerToClient); err != nil {
		return n, err
	}
	if n.MACC2S, err = FindBestMatch(client.MACs, server.MacAlgorithmsClientToServer); err != nil {
		return n, err
	}
	if n.MACS2C, err = FindBestMatch(client.MACs, server.MacAlgorithmsServerToClient); err != nil {
		return n, err
	}
	// The client offers only "none", so compression resolves to "none"
	// whenever the server lists it and fails like any other category
	// otherwise (spec §9 Open Questions).
	if n.CompressionC2S, err = FindBestMatch(client.Compressions, server.CompressionAlgorithmsClientToServer); err != nil {
		return n, err
	}
	if n.CompressionS2C, err = FindBestMatch(client.Compressions, server.CompressionAlgorithmsServerToClient); err != nil {
		return n, err
	}
	return n, nil
}
