// Package encrypt seals small secrets, such as wallet keys, with a password-derived key.
//
// Keys are derived with argon2id; payloads are sealed with XChaCha20-Poly1305.
// The derivation parameters are serialized alongside a poly1305 tag so a wrong
// password is detected before any payload is opened.
package encrypt

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/poly1305"
)

const (
	defaultTime = 1
	defaultMem  = 64 * 1024

	// KeySize is the size of the encryption key.
	KeySize = 32
	// SaltSize is the size of the argon2id salt.
	SaltSize = 16

	version byte = 0

	paramsSize     = 1 + SaltSize + 4 + 4 + 1
	serializedSize = paramsSize + poly1305.TagSize
)

var (
	// ErrIncorrectPassword is returned by Deserialize when the password does not match.
	ErrIncorrectPassword = errors.New("incorrect password")
	// ErrMalformed is returned for blobs that were not produced by this package.
	ErrMalformed = errors.New("malformed encrypted blob")
)

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// Crypter holds a derived key. Create one with NewCrypter or Deserialize.
type Crypter struct {
	key    [KeySize]byte
	tag    [poly1305.TagSize]byte
	salt   [SaltSize]byte
	params argonParams
}

// NewCrypter derives a fresh key from pw with a random salt.
func NewCrypter(pw string) (*Crypter, error) {
	c := &Crypter{
		params: argonParams{
			time:    defaultTime,
			memory:  defaultMem,
			threads: uint8(min(runtime.NumCPU(), 255)),
		},
	}
	if _, err := rand.Read(c.salt[:]); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	polyKey := c.derive(pw)
	poly1305.Sum(&c.tag, c.serializeParams(), &polyKey)

	return c, nil
}

// Deserialize rebuilds a Crypter from Serialize output, verifying pw.
func Deserialize(pw string, blob []byte) (*Crypter, error) {
	if len(blob) != serializedSize || blob[0] != version {
		return nil, ErrMalformed
	}

	c := &Crypter{}
	off := 1
	copy(c.salt[:], blob[off:off+SaltSize])
	off += SaltSize
	c.params.time = binary.BigEndian.Uint32(blob[off:])
	off += 4
	c.params.memory = binary.BigEndian.Uint32(blob[off:])
	off += 4
	c.params.threads = blob[off]
	off++
	copy(c.tag[:], blob[off:])

	if c.params.threads == 0 {
		return nil, ErrMalformed
	}

	polyKey := c.derive(pw)
	if !poly1305.Verify(&c.tag, c.serializeParams(), &polyKey) {
		c.Close()
		return nil, ErrIncorrectPassword
	}

	return c, nil
}

// derive fills c.key and returns the MAC key used to authenticate the parameters.
func (c *Crypter) derive(pw string) [KeySize]byte {
	keyB := argon2.IDKey([]byte(pw), c.salt[:], c.params.time, c.params.memory, c.params.threads, KeySize*2)
	copy(c.key[:], keyB[:KeySize])

	var polyKey [KeySize]byte
	copy(polyKey[:], keyB[KeySize:])
	return polyKey
}

func (c *Crypter) serializeParams() []byte {
	b := make([]byte, 0, paramsSize)
	b = append(b, version)
	b = append(b, c.salt[:]...)
	b = binary.BigEndian.AppendUint32(b, c.params.time)
	b = binary.BigEndian.AppendUint32(b, c.params.memory)
	return append(b, c.params.threads)
}

// Serialize returns the derivation parameters and tag; the key itself is never included.
func (c *Crypter) Serialize() []byte {
	return append(c.serializeParams(), c.tag[:]...)
}

// Encrypt seals plainText as version | nonce | ciphertext.
func (c *Crypter) Encrypt(plainText []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("aead: %w", err)
	}

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plainText)+aead.Overhead())
	out[0] = version
	if _, err := rand.Read(out[1:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return aead.Seal(out, out[1:], plainText, nil), nil
}

// Decrypt opens a payload produced by Encrypt.
func (c *Crypter) Decrypt(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key[:])
	if err != nil {
		return nil, fmt.Errorf("aead: %w", err)
	}

	if len(sealed) < 1+aead.NonceSize()+aead.Overhead() || sealed[0] != version {
		return nil, ErrMalformed
	}

	nonce := sealed[1 : 1+aead.NonceSize()]
	plainText, err := aead.Open(nil, nonce, sealed[1+aead.NonceSize():], nil)
	if err != nil {
		return nil, fmt.Errorf("aead open: %w", err)
	}
	return plainText, nil
}

// Close zeros the key. The Crypter is useless afterwards.
func (c *Crypter) Close() {
	clear(c.key[:])
}
