package transport

import (
	"hash"
	"math/big"

	"github.com/pkg/errors"

	"github.com/qt-creator/qtc-ssh/kex"
	"github.com/qt-creator/qtc-ssh/sshcrypto"
	"github.com/qt-creator/qtc-ssh/wire"
)

// performKeyExchange runs the initial key exchange synchronously, before
// the read loop starts. Subsequent, server-initiated re-keys run the same
// machinery from inside the read loop (handleServerInitiatedRekey).
func (t *Transport) performKeyExchange() error {
	ours, err := kex.NewFromCapabilities(t.cfg.Capabilities)
	if err != nil {
		return err
	}
	t.clientKexInit = ours.Marshal()
	t.setPhase(PhaseKexInitSent)
	if err := t.sendRawKexPayload(t.clientKexInit); err != nil {
		return err
	}

	serverPayload, err := t.readPacket()
	if err != nil {
		return errors.Wrap(err, "ssh: read server KEXINIT")
	}
	if len(serverPayload) == 0 || serverPayload[0] != MsgKexInit {
		return errors.New("ssh: expected SSH_MSG_KEXINIT")
	}
	t.serverKexInit = serverPayload
	serverKexInit, err := kex.UnmarshalKexInit(serverPayload[1:])
	if err != nil {
		return errors.Wrap(err, "ssh: parse server KEXINIT")
	}

	negotiated, err := kex.Negotiate(t.cfg.Capabilities, serverKexInit)
	if err != nil {
		_ = t.Disconnect(DisconnectKeyExchangeFailed, err.Error())
		return err
	}
	t.negotiated = negotiated

	return t.runKeyExchange(negotiated)
}

// handleServerInitiatedRekey is invoked by the read loop when a KEXINIT
// arrives mid-session. It runs the same exchange, then installs fresh
// keys without resetting sequence numbers or dropping channel traffic
// queued behind it (spec §4.4).
func (t *Transport) handleServerInitiatedRekey(serverKexInitBody []byte) error {
	t.serverKexInit = append([]byte{MsgKexInit}, serverKexInitBody...)
	serverKexInit, err := kex.UnmarshalKexInit(serverKexInitBody)
	if err != nil {
		return errors.Wrap(err, "ssh: parse rekey KEXINIT")
	}

	ours, err := kex.NewFromCapabilities(t.cfg.Capabilities)
	if err != nil {
		return err
	}
	t.clientKexInit = ours.Marshal()
	if err := t.sendRawKexPayload(t.clientKexInit); err != nil {
		return err
	}

	negotiated, err := kex.Negotiate(t.cfg.Capabilities, serverKexInit)
	if err != nil {
		return err
	}
	t.negotiated = negotiated
	return t.runKeyExchange(negotiated)
}

// runKeyExchange executes the DH/ECDH/curve25519 exchange for negotiated,
// verifies the server host key, installs the derived keys and completes
// NEWKEYS in both directions.
func (t *Transport) runKeyExchange(negotiated kex.Negotiated) error {
	t.setPhase(PhaseDhInitSent)

	var kS, H []byte
	var K *big.Int
	var err error

	switch negotiated.Kex {
	case kex.DiffieHellmanGroup1SHA1, kex.DiffieHellmanGroup14SHA1:
		kS, H, K, err = t.runClassicDH(negotiated)
	case kex.Curve25519SHA256:
		kS, H, K, err = t.runCurve25519(negotiated)
	case kex.ECDHNistp256, kex.ECDHNistp384, kex.ECDHNistp521:
		kS, H, K, err = t.runECDH(negotiated)
	default:
		err = errors.Errorf("ssh: unsupported kex algorithm %q", negotiated.Kex)
	}
	if err != nil {
		_ = t.Disconnect(DisconnectKeyExchangeFailed, err.Error())
		return err
	}

	if t.cfg.HostKeyDB != nil {
		outcome, err := t.cfg.HostKeyDB.Match(t.cfg.Host, kS)
		if err != nil {
			_ = t.Disconnect(DisconnectHostKeyNotVerifiable, err.Error())
			return err
		}
		if !sshcrypto.Accept(t.cfg.HostKeyCheckMode, outcome) {
			_ = t.Disconnect(DisconnectHostKeyNotVerifiable, "host key verification failed")
			return errors.New("ssh: host key verification failed")
		}
	}

	if t.sessionID == nil {
		t.sessionID = H
	}

	keys := deriveKeySet(kex.HashForKex(negotiated.Kex), K, H, t.sessionID)

	if err := t.sendPacket(MsgNewKeys, nil); err != nil {
		return err
	}
	t.setPhase(PhaseNewKeysSent)

	reply, err := t.readPacket()
	if err != nil {
		return errors.Wrap(err, "ssh: read NEWKEYS")
	}
	if len(reply) == 0 || reply[0] != MsgNewKeys {
		return errors.New("ssh: expected SSH_MSG_NEWKEYS")
	}

	if err := t.envelope.Rekey(negotiated.CipherC2S, negotiated.MACC2S, negotiated.CipherS2C, negotiated.MACS2C, keys); err != nil {
		return errors.Wrap(err, "ssh: install negotiated keys")
	}
	t.setPhase(PhaseKeyExchangeSuccess)
	return nil
}

func deriveKeySet(newHash func() hash.Hash, K *big.Int, H, sessionID []byte) sshcrypto.KeySet {
	roles := []byte{
		sshcrypto.RoleIVClientToServer, sshcrypto.RoleIVServerToClient,
		sshcrypto.RoleKeyClientToServer, sshcrypto.RoleKeyServerToClient,
		sshcrypto.RoleIntegrityClientToServer, sshcrypto.RoleIntegrityServerToClient,
	}
	out := make(sshcrypto.KeySet, len(roles))
	for _, role := range roles {
		out[role] = sshcrypto.DeriveKey(newHash, K, H, sessionID, role, 64)
	}
	return out
}

func (t *Transport) runClassicDH(negotiated kex.Negotiated) (kS, H []byte, K *big.Int, err error) {
	group, err := kex.GroupForKex(negotiated.Kex)
	if err != nil {
		return nil, nil, nil, err
	}
	kp, err := kex.NewDHKeyPair(group)
	if err != nil {
		return nil, nil, nil, err
	}

	b := wire.NewBufferWithCapacity(256)
	b.AppendMPInt(kp.E)
	if err := t.sendPacket(MsgKexDHInit, b.Bytes()); err != nil {
		return nil, nil, nil, err
	}

	payload, err := t.readPacket()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(payload) == 0 || payload[0] != MsgKexDHReply {
		return nil, nil, nil, errors.New("ssh: expected SSH_MSG_KEXDH_REPLY")
	}
	rb := wire.NewBuffer(payload[1:])
	kS, err = rb.ConsumeBytes()
	if err != nil {
		return nil, nil, nil, err
	}
	f, err := rb.ConsumeMPInt()
	if err != nil {
		return nil, nil, nil, err
	}
	sig, err := rb.ConsumeBytes()
	if err != nil {
		return nil, nil, nil, err
	}

	K, err = kp.SharedSecret(f)
	if err != nil {
		return nil, nil, nil, err
	}

	H = kex.ExchangeHashDH(kex.HashForKex(negotiated.Kex), t.clientID, t.serverID, t.clientKexInit, t.serverKexInit, kS, kp.E, f, K)
	if err := sshcrypto.VerifyHostSignature(kS, H, sig); err != nil {
		return nil, nil, nil, err
	}
	return kS, H, K, nil
}

func (t *Transport) runECDH(negotiated kex.Negotiated) (kS, H []byte, K *big.Int, err error) {
	curve, err := kex.CurveForKex(negotiated.Kex)
	if err != nil {
		return nil, nil, nil, err
	}
	kp, err := kex.NewECDHKeyPair(curve)
	if err != nil {
		return nil, nil, nil, err
	}

	b := wire.NewBufferWithCapacity(256)
	b.AppendBytes(kp.Q)
	if err := t.sendPacket(MsgKexDHInit, b.Bytes()); err != nil {
		return nil, nil, nil, err
	}

	payload, err := t.readPacket()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(payload) == 0 || payload[0] != MsgKexDHReply {
		return nil, nil, nil, errors.New("ssh: expected SSH_MSG_KEXDH_REPLY")
	}
	rb := wire.NewBuffer(payload[1:])
	kS, err = rb.ConsumeBytes()
	if err != nil {
		return nil, nil, nil, err
	}
	qS, err := rb.ConsumeBytes()
	if err != nil {
		return nil, nil, nil, err
	}
	sig, err := rb.ConsumeBytes()
	if err != nil {
		return nil, nil, nil, err
	}

	K, err = kp.SharedSecret(qS)
	if err != nil {
		return nil, nil, nil, err
	}
	H = kex.ExchangeHashECDH(kex.HashForKex(negotiated.Kex), t.clientID, t.serverID, t.clientKexInit, t.serverKexInit, kS, kp.Q, qS, K)
	if err := sshcrypto.VerifyHostSignature(kS, H, sig); err != nil {
		return nil, nil, nil, err
	}
	return kS, H, K, nil
}

func (t *Transport) runCurve25519(negotiated kex.Negotiated) (kS, H []byte, K *big.Int, err error) {
	kp, err := kex.NewCurve25519KeyPair()
	if err != nil {
		return nil, nil, nil, err
	}

	b := wire.NewBufferWithCapacity(64)
	b.AppendBytes(kp.Q)
	if err := t.sendPacket(MsgKexDHInit, b.Bytes()); err != nil {
		return nil, nil, nil, err
	}

	payload, err := t.readPacket()
	if err != nil {
		return nil, nil, nil, err
	}
	if len(payload) == 0 || payload[0] != MsgKexDHReply {
		return nil, nil, nil, errors.New("ssh: expected SSH_MSG_KEXDH_REPLY")
	}
	rb := wire.NewBuffer(payload[1:])
	kS, err = rb.ConsumeBytes()
	if err != nil {
		return nil, nil, nil, err
	}
	qS, err := rb.ConsumeBytes()
	if err != nil {
		return nil, nil, nil, err
	}
	sig, err := rb.ConsumeBytes()
	if err != nil {
		return nil, nil, nil, err
	}

	K, err = kp.SharedSecret(qS)
	if err != nil {
		return nil, nil, nil, err
	}
	H = kex.ExchangeHashECDH(kex.HashForKex(negotiated.Kex), t.clientID, t.serverID, t.clientKexInit, t.serverKexInit, kS, kp.Q, qS, K)
	if err := sshcrypto.VerifyHostSignature(kS, H, sig); err != nil {
		return nil, nil, nil, err
	}
	return kS, H, K, nil
}
