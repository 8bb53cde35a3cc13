package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)

// VerifyOptions captures what a verifier enforces beyond the signature.
type VerifyOptions struct {
	// Issuer the token must carry. Empty disables the check.
	Issuer string

	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration

	// Now overrides the clock used for exp and nbf. Defaults to time.Now.
	Now func() time.Time
}

// Verifier checks signatures against a KeySet. Any algorithm present in the
// set is accepted, but the token header must match the alg of the key it
// names.
type Verifier struct {
	keys *KeySet
	opts VerifyOptions
}

func NewVerifier(keys *KeySet, opts VerifyOptions) *Verifier {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Verifier{keys: keys, opts: opts}
}

// Verify validates signature, issuer and the time claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{AlgorithmEdDSA, AlgorithmES256}),
		jwt.WithTimeFunc(v.opts.Now),
		jwt.WithLeeway(v.opts.Leeway),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	claims, err := v.parse(p, token)
	if err != nil {
		return nil, err
	}
	if v.opts.Issuer != "" && claims.Issuer != v.opts.Issuer {
		return nil, ErrIssuer
	}
	return claims, nil
}

// VerifySignature validates the signature and issuer only. Time claims are
// ignored so callers can act on tokens that already expired, such as a
// revocation request.
func (v *Verifier) VerifySignature(token string) (*Claims, error) {
	p := jwt.NewParser(
		jwt.WithValidMethods([]string{AlgorithmEdDSA, AlgorithmES256}),
		jwt.WithoutClaimsValidation(),
	)
	claims, err := v.parse(p, token)
	if err != nil {
		return nil, err
	}
	if v.opts.Issuer != "" && claims.Issuer != v.opts.Issuer {
		return nil, ErrIssuer
	}
	return claims, nil
}

func (v *Verifier) parse(p *jwt.Parser, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := p.ParseWithClaims(token, claims, v.keyFunc)
	if err != nil {
		return nil, mapParseError(err)
	}
	return claims, nil
}

func (v *Verifier) keyFunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, fmt.Errorf("%w: missing kid", ErrUnknownKID)
	}
	key, alg, err := v.keys.lookup(kid)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
	}
	if t.Method.Alg() != alg {
		return nil, fmt.Errorf("%w: kid %q is %s, token is %s", ErrInvalidSig, kid, alg, t.Method.Alg())
	}
	return key, nil
}

func mapParseError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownKID), errors.Is(err, ErrInvalidSig):
		return err
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet), errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSig, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
