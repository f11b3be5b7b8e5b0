// Package sshcrypto implements the SSH-2 crypto envelope: session-key
// derivation from a key-exchange result, symmetric cipher and MAC
// application to transport packets, host-key verification, and
// client-authentication signing (spec §4.2).
package sshcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"github.com/pkg/errors"
)

// Cipher algorithm names, as negotiated in KEXINIT name-lists.
const (
	CipherAES128CBC = "aes128-cbc"
	CipherAES128CTR = "aes128-ctr"
	CipherAES192CTR = "aes192-ctr"
	CipherAES256CTR = "aes256-ctr"
	Cipher3DESCBC   = "3des-cbc"
	Cipher3DESCTR   = "3des-ctr"
)

// MAC algorithm names.
const (
	MACHMACSHA1   = "hmac-sha1"
	MACHMACSHA256 = "hmac-sha2-256"
	MACHMACSHA384 = "hmac-sha2-384"
	MACHMACSHA512 = "hmac-sha2-512"
)

// cipherSpec describes how to construct a symmetric stream for a given
// negotiated cipher name.
type cipherSpec struct {
	keySize   int
	blockSize int
	// newStream builds an encrypting or decrypting cipher.Stream/BlockMode
	// wrapper around a freshly constructed block cipher. CBC ciphers return
	// a blockModeStream adapter so callers see a uniform streamCipher.
	newStream func(key, iv []byte, encrypt bool) (streamCipher, error)
}

// streamCipher is satisfied by both CTR (cipher.Stream) and CBC
// (cipher.BlockMode) modes via small adapters below, so the envelope can
// treat every negotiated cipher uniformly.
type streamCipher interface {
	XORKeyStream(dst, src []byte)
}

type blockModeAdapter struct {
	mode      cipher.BlockMode
	blockSize int
}

// XORKeyStream encrypts/decrypts len(src) bytes, which must be a multiple
// of the block size; CBC mode has no native streaming variant so this
// requires the caller to only ever pass whole blocks (true for SSH packets,
// which are always padded to a cipher-block multiple).
func (a *blockModeAdapter) XORKeyStream(dst, src []byte) {
	a.mode.CryptBlocks(dst, src)
}

func newAESCipher(key, iv []byte, encrypt bool, ctr bool) (streamCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "sshcrypto: aes key")
	}
	if ctr {
		return cipher.NewCTR(block, iv), nil
	}
	if encrypt {
		return &blockModeAdapter{mode: cipher.NewCBCEncrypter(block, iv), blockSize: block.BlockSize()}, nil
	}
	return &blockModeAdapter{mode: cipher.NewCBCDecrypter(block, iv), blockSize: block.BlockSize()}, nil
}

func new3DESCipher(key, iv []byte, encrypt bool, ctr bool) (streamCipher, error) {
	block, err := des.NewTripleDESCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "sshcrypto: 3des key")
	}
	if ctr {
		return cipher.NewCTR(block, iv), nil
	}
	if encrypt {
		return &blockModeAdapter{mode: cipher.NewCBCEncrypter(block, iv), blockSize: block.BlockSize()}, nil
	}
	return &blockModeAdapter{mode: cipher.NewCBCDecrypter(block, iv), blockSize: block.BlockSize()}, nil
}

var cipherSpecs = map[string]cipherSpec{
	CipherAES128CBC: {keySize: 16, blockSize: aes.BlockSize, newStream: func(k, iv []byte, enc bool) (streamCipher, error) {
		return newAESCipher(k, iv, enc, false)
	}},
	CipherAES128CTR: {keySize: 16, blockSize: aes.BlockSize, newStream: func(k, iv []byte, enc bool) (streamCipher, error) {
		return newAESCipher(k, iv, enc, true)
	}},
	CipherAES192CTR: {keySize: 24, blockSize: aes.BlockSize, newStream: func(k, iv []byte, enc bool) (streamCipher, error) {
		return newAESCipher(k, iv, enc, true)
	}},
	CipherAES256CTR: {keySize: 32, blockSize: aes.BlockSize, newStream: func(k, iv []byte, enc bool) (streamCipher, error) {
		return newAESCipher(k, iv, enc, true)
	}},
	Cipher3DESCBC: {keySize: 24, blockSize: des.BlockSize, newStream: func(k, iv []byte, enc bool) (streamCipher, error) {
		return new3DESCipher(k, iv, enc, false)
	}},
	Cipher3DESCTR: {keySize: 24, blockSize: des.BlockSize, newStream: func(k, iv []byte, enc bool) (streamCipher, error) {
		return new3DESCipher(k, iv, enc, true)
	}},
}

// BlockSize returns the cipher-block size in bytes for name, used to
// compute packet padding (spec §4.1).
func BlockSize(name string) (int, error) {
	spec, ok := cipherSpecs[name]
	if !ok {
		return 0, errors.Errorf("sshcrypto: unknown cipher %q", name)
	}
	return spec.blockSize, nil
}

// KeySize returns the symmetric key length in bytes for name.
func KeySize(name string) (int, error) {
	spec, ok := cipherSpecs[name]
	if !ok {
		return 0, errors.Errorf("sshcrypto: unknown cipher %q", name)
	}
	return spec.keySize, nil
}

type macSpec struct {
	keySize int
	tagSize int
	newHash func() hash.Hash
}

var macSpecs = map[string]macSpec{
	MACHMACSHA1:   {keySize: 20, tagSize: sha1.Size, newHash: sha1.New},
	MACHMACSHA256: {keySize: 32, tagSize: sha256.Size, newHash: sha256.New},
	MACHMACSHA384: {keySize: 48, tagSize: sha512.Size384, newHash: sha512.New384},
	MACHMACSHA512: {keySize: 64, tagSize: sha512.Size, newHash: sha512.New},
}

// MACKeySize returns the HMAC key length in bytes for name.
func MACKeySize(name string) (int, error) {
	spec, ok := macSpecs[name]
	if !ok {
		return 0, errors.Errorf("sshcrypto: unknown mac %q", name)
	}
	return spec.keySize, nil
}

// MACLength returns the HMAC tag length in bytes for name.
func MACLength(name string) (int, error) {
	spec, ok := macSpecs[name]
	if !ok {
		return 0, errors.Errorf("sshcrypto: unknown mac %q", name)
	}
	return spec.tagSize, nil
}

func newHMAC(name string, key []byte) (hash.Hash, error) {
	spec, ok := macSpecs[name]
	if !ok {
		return nil, errors.Errorf("sshcrypto: unknown mac %q", name)
	}
	return hmac.New(spec.newHash, key), nil
}
