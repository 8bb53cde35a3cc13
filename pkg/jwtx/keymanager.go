package jwtx

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/aussiebroadwan/tabgate/pkg/cryptox"
	"github.com/aussiebroadwan/tabgate/pkg/idx"
)

var ErrNoSigner = errors.New("jwtx: no active signing key")

// KeyManager owns the active signing keys and the verification KeySet.
// Signing picks a random active key; verification accepts every key still in
// the set, including retired ones inside their grace period.
type KeyManager struct {
	KeySet   *KeySet
	Verifier *Verifier

	algorithm string

	mu      sync.RWMutex
	signers []Signer
}

// KeyManagerOptions configures an ephemeral KeyManager.
type KeyManagerOptions struct {
	// Algorithm is EdDSA or ES256.
	Algorithm string

	// Issuer is stamped into and required on every token.
	Issuer string

	// NumKeys is the number of signing keys, clamped to [1,10]. Defaults to 3.
	NumKeys int

	// Leeway and Now are forwarded to the Verifier.
	Leeway time.Duration
	Now    func() time.Time
}

func clampKeys(n int) int {
	switch {
	case n <= 0:
		return 3
	case n > 10:
		return 10
	default:
		return n
	}
}

func newKeyManager(alg, issuer string, leeway time.Duration, now func() time.Time) (*KeyManager, error) {
	if issuer == "" {
		return nil, errors.New("jwtx: Issuer is required")
	}
	if alg != AlgorithmEdDSA && alg != AlgorithmES256 {
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: EdDSA, ES256)", alg)
	}
	ks := NewKeySet()
	return &KeyManager{
		KeySet:    ks,
		Verifier:  NewVerifier(ks, VerifyOptions{Issuer: issuer, Leeway: leeway, Now: now}),
		algorithm: alg,
	}, nil
}

// NewEphemeralKeyManager generates keys in memory only. Every token becomes
// invalid when the process restarts.
func NewEphemeralKeyManager(opts KeyManagerOptions) (*KeyManager, error) {
	km, err := newKeyManager(opts.Algorithm, opts.Issuer, opts.Leeway, opts.Now)
	if err != nil {
		return nil, err
	}

	for i := range clampKeys(opts.NumKeys) {
		_, signer, err := GenerateSigner(opts.Algorithm, NewKeyID())
		if err != nil {
			return nil, fmt.Errorf("jwtx: generate signer %d: %w", i+1, err)
		}
		if err := km.AddSigner(signer); err != nil {
			return nil, err
		}
	}
	return km, nil
}

// GenerateSigner creates a fresh private key and returns its PEM along with
// a Signer for it.
func GenerateSigner(alg, kid string) ([]byte, Signer, error) {
	var (
		pemData []byte
		err     error
	)
	switch alg {
	case AlgorithmEdDSA:
		pemData, err = cryptox.GenerateEd25519Key()
	case AlgorithmES256:
		pemData, err = cryptox.GenerateES256Key()
	default:
		return nil, nil, fmt.Errorf("jwtx: unsupported algorithm %q", alg)
	}
	if err != nil {
		return nil, nil, err
	}

	signer, err := NewSigner(alg, kid, pemData)
	if err != nil {
		return nil, nil, err
	}
	return pemData, signer, nil
}

// NewKeyID returns a fresh, sortable key id.
func NewKeyID() string {
	return "tabgate-" + idx.New().String()
}

func (km *KeyManager) Algorithm() string { return km.algorithm }

func (km *KeyManager) IsReady() bool { return km.KeySet.IsReady() }

// GetSigner returns a random active signer, or nil when none exist.
func (km *KeyManager) GetSigner() Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()

	switch len(km.signers) {
	case 0:
		return nil
	case 1:
		return km.signers[0]
	default:
		return km.signers[rand.IntN(len(km.signers))]
	}
}

// Sign signs claims with a random active key.
func (km *KeyManager) Sign(claims Claims) (string, error) {
	s := km.GetSigner()
	if s == nil {
		return "", ErrNoSigner
	}
	return s.Sign(claims)
}

func (km *KeyManager) NumSigners() int {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return len(km.signers)
}

// AddSigner makes s available for signing and verification.
func (km *KeyManager) AddSigner(s Signer) error {
	if s == nil {
		return errors.New("jwtx: nil signer")
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	if err := km.KeySet.AddSigner(s); err != nil {
		return fmt.Errorf("jwtx: add signer to keyset: %w", err)
	}
	km.signers = append(km.signers, s)
	return nil
}

// RetireSigner stops signing with kid. Its public key stays in the KeySet
// so already issued tokens keep verifying.
func (km *KeyManager) RetireSigner(kid string) error {
	km.mu.Lock()
	defer km.mu.Unlock()

	if len(km.signers) <= 1 {
		return errors.New("jwtx: cannot retire the last signing key")
	}
	for i, s := range km.signers {
		if s.KID() == kid {
			km.signers = append(km.signers[:i:i], km.signers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("jwtx: signer %q not found", kid)
}

// Signers returns a copy of the active signers.
func (km *KeyManager) Signers() []Signer {
	km.mu.RLock()
	defer km.mu.RUnlock()
	out := make([]Signer, len(km.signers))
	copy(out, km.signers)
	return out
}
