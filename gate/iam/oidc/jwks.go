package oidc

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"time"
)

// jwksDocument is the wire shape of a JSON Web Key Set response.
type jwksDocument struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey is a single JSON Web Key. Only RSA signing keys are used.
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// rsaPublicKey decodes the modulus and exponent of an RSA JWK.
func (k *jwkKey) rsaPublicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("invalid modulus for key %q: %w", k.Kid, err)
	}

	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("invalid exponent for key %q: %w", k.Kid, err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 | int(b)
	}
	if e <= 0 {
		return nil, fmt.Errorf("invalid exponent for key %q", k.Kid)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// jwksKeySet is an immutable snapshot of a provider's signing keys. Readers
// share snapshots without locking; refresh installs a new snapshot.
type jwksKeySet struct {
	keys      map[string]*rsa.PublicKey
	fetchedAt time.Time
}

func (s *jwksKeySet) expired(ttl time.Duration) bool {
	return s == nil || time.Since(s.fetchedAt) >= ttl
}

// lookup returns the key for kid. With an empty kid and exactly one key in
// the set, that key is returned; some providers omit the kid header.
func (s *jwksKeySet) lookup(kid string) (*rsa.PublicKey, bool) {
	if s == nil {
		return nil, false
	}
	if kid == "" && len(s.keys) == 1 {
		for _, key := range s.keys {
			return key, true
		}
	}
	key, ok := s.keys[kid]
	return key, ok
}

func newJWKSKeySet(doc *jwksDocument) (*jwksKeySet, error) {
	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		key, err := k.rsaPublicKey()
		if err != nil {
			return nil, err
		}
		keys[k.Kid] = key
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("JWKS contains no usable signing keys")
	}
	return &jwksKeySet{keys: keys, fetchedAt: time.Now()}, nil
}
