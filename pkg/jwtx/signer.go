package jwtx

import "fmt"

// Supported signing algorithms.
const (
	AlgorithmES256 = "ES256"
	AlgorithmEdDSA = "EdDSA"
)

// Signer is anything that can sign gateway tokens.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
	PublicJWK() JWK
}

// NewSigner loads a PKCS8 PEM private key for the given algorithm.
func NewSigner(alg, kid string, pemKey []byte) (Signer, error) {
	switch alg {
	case AlgorithmEdDSA:
		return newEdDSASigner(kid, pemKey)
	case AlgorithmES256:
		return newES256Signer(kid, pemKey)
	default:
		return nil, fmt.Errorf("jwtx: unsupported algorithm %q (supported: EdDSA, ES256)", alg)
	}
}
