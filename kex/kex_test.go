package kex

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindBestMatchPrefersClientOrder(t *testing.T) {
	got, err := FindBestMatch(
		[]string{"aes256-ctr", "aes128-ctr", "3des-cbc"},
		[]string{"3des-cbc", "aes128-ctr"},
	)
	require.NoError(t, err)
	assert.Equal(t, "aes128-ctr", got)
}

func TestFindBestMatchNoOverlap(t *testing.T) {
	_, err := FindBestMatch([]string{"a"}, []string{"b"})
	assert.ErrorIs(t, err, ErrNoCommonAlgorithm)
}

func TestNegotiateAllCategories(t *testing.T) {
	client := Default()
	server := KexInit{
		KexAlgorithms:                      []string{DiffieHellmanGroup14SHA1},
		ServerHostKeyAlgorithms:            []string{"ssh-rsa"},
		EncryptionAlgorithmsClientToServer: []string{"aes128-ctr"},
		EncryptionAlgorithmsServerToClient: []string{"aes128-ctr"},
		MacAlgorithmsClientToServer:        []string{"hmac-sha1"},
		MacAlgorithmsServerToClient:        []string{"hmac-sha1"},
		CompressionAlgorithmsClientToServer: []string{"none"},
		CompressionAlgorithmsServerToClient: []string{"none"},
	}
	n, err := Negotiate(client, server)
	require.NoError(t, err)
	assert.Equal(t, DiffieHellmanGroup14SHA1, n.Kex)
	assert.Equal(t, "ssh-rsa", n.HostKey)
	assert.Equal(t, "aes128-ctr", n.CipherC2S)
	assert.Equal(t, "hmac-sha1", n.MACC2S)
	assert.Equal(t, "none", n.CompressionC2S)
}

func TestKexInitMarshalRoundTrip(t *testing.T) {
	k, err := NewFromCapabilities(Default())
	require.NoError(t, err)
	encoded := k.Marshal()

	decoded, err := UnmarshalKexInit(encoded[1:]) // strip message type
	require.NoError(t, err)
	assert.Equal(t, k.Cookie, decoded.Cookie)
	assert.Equal(t, k.KexAlgorithms, decoded.KexAlgorithms)
	assert.Equal(t, k.CompressionAlgorithmsClientToServer, decoded.CompressionAlgorithmsClientToServer)
}

func TestDHSharedSecretAgrees(t *testing.T) {
	g := Group14()
	client, err := NewDHKeyPair(g)
	require.NoError(t, err)
	server, err := NewDHKeyPair(g)
	require.NoError(t, err)

	kClient, err := client.SharedSecret(server.E)
	require.NoError(t, err)
	kServer, err := server.SharedSecret(client.E)
	require.NoError(t, err)

	assert.Equal(t, 0, kClient.Cmp(kServer))
}

func TestDHRejectsOutOfRangePublicValue(t *testing.T) {
	g := Group14()
	client, err := NewDHKeyPair(g)
	require.NoError(t, err)
	_, err = client.SharedSecret(big.NewInt(0))
	assert.Error(t, err)
}

func TestExchangeHashDHIsDeterministic(t *testing.T) {
	e := big.NewInt(12345)
	f := big.NewInt(67890)
	K := big.NewInt(999)
	h1 := ExchangeHashDH(hashTable[DiffieHellmanGroup14SHA1], []byte("V_C"), []byte("V_S"), []byte("I_C"), []byte("I_S"), []byte("K_S"), e, f, K)
	h2 := ExchangeHashDH(hashTable[DiffieHellmanGroup14SHA1], []byte("V_C"), []byte("V_S"), []byte("I_C"), []byte("I_S"), []byte("K_S"), e, f, K)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 20) // SHA-1
}

func TestCurve25519SharedSecretAgrees(t *testing.T) {
	client, err := NewCurve25519KeyPair()
	require.NoError(t, err)
	server, err := NewCurve25519KeyPair()
	require.NoError(t, err)

	kClient, err := client.SharedSecret(server.Q)
	require.NoError(t, err)
	kServer, err := server.SharedSecret(client.Q)
	require.NoError(t, err)

	assert.Equal(t, 0, kClient.Cmp(kServer))
}

func TestECDHSharedSecretAgrees(t *testing.T) {
	curve, err := CurveForKex(ECDHNistp256)
	require.NoError(t, err)
	client, err := NewECDHKeyPair(curve)
	require.NoError(t, err)
	server, err := NewECDHKeyPair(curve)
	require.NoError(t, err)

	kClient, err := client.SharedSecret(server.Q)
	require.NoError(t, err)
	kServer, err := server.SharedSecret(client.Q)
	require.NoError(t, err)

	assert.Equal(t, 0, kClient.Cmp(kServer))
}
