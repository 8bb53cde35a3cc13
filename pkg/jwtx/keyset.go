package jwtx

import (
	"errors"
	"sync"
)

var ErrNoKey = errors.New("jwtx: key not found")

type keyEntry struct {
	jwk JWK
	pub any
}

// KeySet holds public verification keys. Safe for concurrent use.
type KeySet struct {
	mu   sync.RWMutex
	keys map[string]keyEntry
	// order keeps JWKS output stable in insertion order.
	order []string
}

func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]keyEntry)}
}

// AddSigner publishes the public half of s.
func (k *KeySet) AddSigner(s Signer) error {
	return k.AddJWK(s.PublicJWK())
}

// AddJWK parses and stores j, replacing any key with the same kid.
func (k *KeySet) AddJWK(j JWK) error {
	pub, err := j.PublicKey()
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.keys[j.Kid]; !exists {
		k.order = append(k.order, j.Kid)
	}
	k.keys[j.Kid] = keyEntry{jwk: j, pub: pub}
	return nil
}

// Remove drops kid. Tokens signed with it stop verifying.
func (k *KeySet) Remove(kid string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.keys[kid]; !ok {
		return
	}
	delete(k.keys, kid)
	for i, id := range k.order {
		if id == kid {
			k.order = append(k.order[:i], k.order[i+1:]...)
			break
		}
	}
}

// Get returns the public key for kid.
func (k *KeySet) Get(kid string) (any, error) {
	pub, _, err := k.lookup(kid)
	return pub, err
}

func (k *KeySet) lookup(kid string) (any, string, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	e, ok := k.keys[kid]
	if !ok {
		return nil, "", ErrNoKey
	}
	return e.pub, e.jwk.Alg, nil
}

// PublicJWKS returns a snapshot suitable for serving.
func (k *KeySet) PublicJWKS() JWKS {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := JWKS{Keys: make([]JWK, 0, len(k.order))}
	for _, kid := range k.order {
		out.Keys = append(out.Keys, k.keys[kid].jwk)
	}
	return out
}

// IsReady reports whether at least one key is loaded.
func (k *KeySet) IsReady() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys) > 0
}
