package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	keySize          = 32
	minPassphraseLen = 32
	keyDerivationTag = "paydesk payslip archive v1"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

// Sealer encrypts documents at rest with AES-256-GCM. A Sealer built from an
// empty key is a pass-through.
type Sealer struct {
	aead cipher.AEAD
}

func NewSealer(key string) (*Sealer, error) {
	if key == "" {
		return &Sealer{}, nil
	}
	decoded := decodeKey(key)
	if len(decoded) != keySize {
		if len(key) < minPassphraseLen {
			return nil, fmt.Errorf("DATA_ENCRYPTION_KEY must be 32 bytes after decoding or a passphrase of at least %d characters", minPassphraseLen)
		}
		derived, err := deriveKey(key)
		if err != nil {
			return nil, err
		}
		decoded = derived
	}
	block, err := aes.NewCipher(decoded)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Sealer{aead: aead}, nil
}

func (s *Sealer) Configured() bool {
	return s != nil && s.aead != nil
}

// Seal prefixes the ciphertext with its random nonce.
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	if !s.Configured() {
		return plain, nil
	}
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return s.aead.Seal(nonce, nonce, plain, nil), nil
}

func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if !s.Configured() {
		return sealed, nil
	}
	size := s.aead.NonceSize()
	if len(sealed) < size {
		return nil, ErrCiphertextTooShort
	}
	return s.aead.Open(nil, sealed[:size], sealed[size:], nil)
}

// decodeKey accepts hex, padded or raw base64, or the literal key bytes.
func decodeKey(raw string) []byte {
	if len(raw) == 64 {
		if decoded, err := hex.DecodeString(raw); err == nil {
			return decoded
		}
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(raw); err == nil {
		return decoded
	}
	return []byte(raw)
}

// deriveKey stretches a passphrase into an AES-256 key with HKDF-SHA256.
func deriveKey(passphrase string) ([]byte, error) {
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte(keyDerivationTag))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive data encryption key: %w", err)
	}
	return key, nil
}
