// Package cryptox seals account and card secrets at rest.
//
// A master key is derived from the operator's password with argon2id and a
// per-installation salt. Sealed blobs are AES-256-GCM ciphertexts of the
// JSON encoding of the value, prefixed with their nonce.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophenroll/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	KeySize  = 32
	SaltSize = 16
)

var ErrWrongKey = errors.New("wrong master password")

// DeriveMasterKey stretches password into a 32-byte AES key.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// MakeVerifier returns a value that can be stored next to the salt and
// later compared with CheckVerifier to detect a mistyped password.
func MakeVerifier(masterKey []byte) []byte {
	hash := sha256.Sum256(masterKey)
	return hash[:]
}

// CheckVerifier returns ErrWrongKey when masterKey does not match verifier.
func CheckVerifier(masterKey, verifier []byte) error {
	if subtle.ConstantTimeCompare(MakeVerifier(masterKey), verifier) != 1 {
		return ErrWrongKey
	}
	return nil
}

// Sealer encrypts and decrypts values with one master key.
// It is safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key []byte) (*Sealer, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

// Seal serializes v to JSON and encrypts it. The result is nonce||ciphertext.
func (s *Sealer) Seal(v any) ([]byte, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(plaintext)

	nonce := common.GenerateRandByteArray(s.aead.NonceSize())
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a blob produced by Seal and unmarshals it into v.
func (s *Sealer) Open(blob []byte, v any) error {
	n := s.aead.NonceSize()
	if len(blob) < n {
		return fmt.Errorf("sealed blob too short: %w", common.ErrInvalidRecord)
	}

	plaintext, err := s.aead.Open(nil, blob[:n], blob[n:], nil)
	if err != nil {
		return fmt.Errorf("open sealed blob: %w", err)
	}
	defer common.WipeByteArray(plaintext)

	return json.Unmarshal(plaintext, v)
}
