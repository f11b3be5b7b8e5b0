package sshcrypto

import (
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKeyLengthAndDeterminism(t *testing.T) {
	K := big.NewInt(123456789)
	H := []byte("exchange-hash")
	sessionID := []byte("session-id")

	k1 := DeriveKey(sha256.New, K, H, sessionID, RoleKeyClientToServer, 48)
	k2 := DeriveKey(sha256.New, K, H, sessionID, RoleKeyClientToServer, 48)
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 48)

	// Different roles must not collide.
	other := DeriveKey(sha256.New, K, H, sessionID, RoleKeyServerToClient, 48)
	assert.NotEqual(t, k1, other)
}

func buildKeySet() KeySet {
	K := big.NewInt(987654321)
	H := []byte("H")
	sessionID := []byte("sid")
	ks := KeySet{}
	for _, role := range []byte{
		RoleIVClientToServer, RoleIVServerToClient,
		RoleKeyClientToServer, RoleKeyServerToClient,
		RoleIntegrityClientToServer, RoleIntegrityServerToClient,
	} {
		ks[role] = DeriveKey(sha256.New, K, H, sessionID, role, 64)
	}
	return ks
}

func TestEnvelopeEncryptDecryptRoundTrip(t *testing.T) {
	keys := buildKeySet()

	client := NewEnvelope()
	require.NoError(t, client.Rekey(CipherAES128CTR, MACHMACSHA256, CipherAES128CTR, MACHMACSHA256, keys))

	server := NewEnvelope()
	// Server's outbound uses the client's S2C keys; its inbound uses the
	// client's C2S keys, mirroring the directional key assignment.
	serverKeys := KeySet{
		RoleIVClientToServer:        keys[RoleIVServerToClient],
		RoleKeyClientToServer:       keys[RoleKeyServerToClient],
		RoleIntegrityClientToServer: keys[RoleIntegrityServerToClient],
		RoleIVServerToClient:        keys[RoleIVClientToServer],
		RoleKeyServerToClient:       keys[RoleKeyClientToServer],
		RoleIntegrityServerToClient: keys[RoleIntegrityClientToServer],
	}
	require.NoError(t, server.Rekey(CipherAES128CTR, MACHMACSHA256, CipherAES128CTR, MACHMACSHA256, serverKeys))

	payload := []byte("hello, ssh")
	framed, err := paddedFrame(payload, client.OutBlockSize())
	require.NoError(t, err)

	original := append([]byte(nil), framed...)
	mac, err := client.EncryptOutgoing(framed)
	require.NoError(t, err)

	err = server.DecryptIncoming(framed, mac)
	require.NoError(t, err)
	assert.Equal(t, original, framed)
}

func TestEnvelopeRejectsTamperedMAC(t *testing.T) {
	keys := buildKeySet()
	client := NewEnvelope()
	require.NoError(t, client.Rekey(CipherAES128CTR, MACHMACSHA256, CipherAES128CTR, MACHMACSHA256, keys))

	framed, err := paddedFrame([]byte("data"), client.OutBlockSize())
	require.NoError(t, err)
	mac, err := client.EncryptOutgoing(framed)
	require.NoError(t, err)
	mac[0] ^= 0xff

	server := NewEnvelope()
	serverKeys := KeySet{
		RoleIVClientToServer:        keys[RoleIVServerToClient],
		RoleKeyClientToServer:       keys[RoleKeyServerToClient],
		RoleIntegrityClientToServer: keys[RoleIntegrityServerToClient],
		RoleIVServerToClient:        keys[RoleIVClientToServer],
		RoleKeyServerToClient:       keys[RoleKeyClientToServer],
		RoleIntegrityServerToClient: keys[RoleIntegrityClientToServer],
	}
	require.NoError(t, server.Rekey(CipherAES128CTR, MACHMACSHA256, CipherAES128CTR, MACHMACSHA256, serverKeys))
	err = server.DecryptIncoming(framed, mac)
	assert.Error(t, err)
}

func paddedFrame(payload []byte, blockSize int) ([]byte, error) {
	// local helper mirroring wire.EncodeFrame without importing wire, to
	// keep this test focused on the envelope.
	padLen := blockSize - (len(payload)+5)%blockSize
	if padLen < 4 {
		padLen += blockSize
	}
	out := make([]byte, 1+len(payload)+padLen)
	out[0] = byte(padLen)
	copy(out[1:], payload)
	return out, nil
}
