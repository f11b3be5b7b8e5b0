package kex

import (
	"crypto/rand"

	"github.com/pkg/errors"

	"github.com/qt-creator/qtc-ssh/wire"
)

// MsgKexInit is the SSH_MSG_KEXINIT message number (RFC 4253 §7.1).
const MsgKexInit = 20

// KexInit is the payload of SSH_MSG_KEXINIT, carrying preference-ordered
// name-lists for every negotiated category.
type KexInit struct {
	Cookie                             [16]byte
	KexAlgorithms                      []string
	ServerHostKeyAlgorithms            []string
	EncryptionAlgorithmsClientToServer []string
	EncryptionAlgorithmsServerToClient []string
	MacAlgorithmsClientToServer        []string
	MacAlgorithmsServerToClient        []string
	CompressionAlgorithmsClientToServer []string
	CompressionAlgorithmsServerToClient []string
	LanguagesClientToServer            []string
	LanguagesServerToClient            []string
	FirstKexPacketFollows              bool
}

// NewFromCapabilities builds the client's outgoing KEXINIT.
func NewFromCapabilities(c Capabilities) (KexInit, error) {
	var cookie [16]byte
	if _, err := rand.Read(cookie[:]); err != nil {
		return KexInit{}, errors.Wrap(err, "kex: generate cookie")
	}
	return KexInit{
		Cookie:                             cookie,
		KexAlgorithms:                      c.KexAlgorithms,
		ServerHostKeyAlgorithms:            c.HostKeyAlgorithms,
		EncryptionAlgorithmsClientToServer: c.Ciphers,
		EncryptionAlgorithmsServerToClient: c.Ciphers,
		MacAlgorithmsClientToServer:        c.MACs,
		MacAlgorithmsServerToClient:        c.MACs,
		CompressionAlgorithmsClientToServer: c.Compressions,
		CompressionAlgorithmsServerToClient: c.Compressions,
		LanguagesClientToServer:            []string{},
		LanguagesServerToClient:            []string{},
	}, nil
}

// Marshal encodes the full SSH_MSG_KEXINIT payload, including the leading
// message-type byte.
func (k KexInit) Marshal() []byte {
	b := wire.NewBufferWithCapacity(256)
	b.AppendUint8(MsgKexInit)
	b.AppendRawBytes(k.Cookie[:])
	b.AppendNameList(k.KexAlgorithms)
	b.AppendNameList(k.ServerHostKeyAlgorithms)
	b.AppendNameList(k.EncryptionAlgorithmsClientToServer)
	b.AppendNameList(k.EncryptionAlgorithmsServerToClient)
	b.AppendNameList(k.MacAlgorithmsClientToServer)
	b.AppendNameList(k.MacAlgorithmsServerToClient)
	b.AppendNameList(k.CompressionAlgorithmsClientToServer)
	b.AppendNameList(k.CompressionAlgorithmsServerToClient)
	b.AppendNameList(k.LanguagesClientToServer)
	b.AppendNameList(k.LanguagesServerToClient)
	b.AppendBool(k.FirstKexPacketFollows)
	b.AppendUint32(0) // reserved
	return append([]byte(nil), b.Bytes()...)
}

// UnmarshalKexInit decodes a payload previously read with the leading
// message-type byte already stripped.
func UnmarshalKexInit(payload []byte) (KexInit, error) {
	b := wire.NewBuffer(payload)
	var k KexInit
	var err error

	cookie, err := b.ConsumeRawBytes(16)
	if err != nil {
		return k, errors.Wrap(err, "kex: cookie")
	}
	copy(k.Cookie[:], cookie)

	fields := []*[]string{
		&k.KexAlgorithms, &k.ServerHostKeyAlgorithms,
		&k.EncryptionAlgorithmsClientToServer, &k.EncryptionAlgorithmsServerToClient,
		&k.MacAlgorithmsClientToServer, &k.MacAlgorithmsServerToClient,
		&k.CompressionAlgorithmsClientToServer, &k.CompressionAlgorithmsServerToClient,
		&k.LanguagesClientToServer, &k.LanguagesServerToClient,
	}
	for _, f := range fields {
		*f, err = b.ConsumeNameList()
		if err != nil {
			return k, errors.Wrap(err, "kex: name-list")
		}
	}
	k.FirstKexPacketFollows, err = b.ConsumeBool()
	if err != nil {
		return k, errors.Wrap(err, "kex: first-kex-packet-follows")
	}
	return k, nil
}
