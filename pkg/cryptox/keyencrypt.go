package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrCiphertextTooShort is returned when sealed data is shorter than a nonce.
var ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")

// KeySealer encrypts signing keys at rest with AES-256-GCM. Output layout is
// nonce || ciphertext || tag.
type KeySealer struct {
	aead cipher.AEAD
}

// NewKeySealer derives an AES-256 key from arbitrary key material.
func NewKeySealer(material []byte) (*KeySealer, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty master key material")
	}
	sum := sha256.Sum256(material)

	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: new gcm: %w", err)
	}
	return &KeySealer{aead: aead}, nil
}

// LoadKeySealer reads master key material from path. When path is empty the
// value of envVar is used instead. If neither is set an ephemeral key is
// generated and ephemeral is reported true, meaning sealed keys will not
// survive a restart.
func LoadKeySealer(path, envVar string) (sealer *KeySealer, ephemeral bool, err error) {
	var material []byte
	switch {
	case path != "":
		material, err = os.ReadFile(path)
		if err != nil {
			return nil, false, fmt.Errorf("cryptox: read master key: %w", err)
		}
	case os.Getenv(envVar) != "":
		material = []byte(os.Getenv(envVar))
	default:
		material = make([]byte, 32)
		if _, err := rand.Read(material); err != nil {
			return nil, false, fmt.Errorf("cryptox: generate master key: %w", err)
		}
		ephemeral = true
	}

	sealer, err = NewKeySealer(material)
	return sealer, ephemeral, err
}

func (s *KeySealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *KeySealer) Open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrCiphertextTooShort
	}
	plain, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decrypt: %w", err)
	}
	return plain, nil
}
