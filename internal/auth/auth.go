// Package auth implements the Auth Adapter: extraction of the bearer
// token and verification of its signature against the issuer's current
// DID-document signing key. See SPEC_FULL.md §4.G.
package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/bluesky-social/indigo/atproto/atcrypto"
	"github.com/golang-jwt/jwt/v5"

	"github.com/feedgen/feedgen/internal/identity"
)

// ErrMissingBearer is returned when the Authorization header is absent
// or not a Bearer scheme.
var ErrMissingBearer = errors.New("auth: missing or malformed bearer token")

// ErrInvalidSignature is returned when token verification fails.
var ErrInvalidSignature = errors.New("auth: invalid token signature")

// KeyResolver resolves an issuer DID to its current atproto signing
// key. Implemented against DID documents, same machinery as the
// Follow Primer's repository endpoint lookup.
type KeyResolver interface {
	ResolveSigningKey(ctx context.Context, issuer string) (atcrypto.PublicKey, error)
}

// DIDKeyResolver implements KeyResolver against an identity.Resolver.
type DIDKeyResolver struct {
	Resolver *identity.Resolver
}

// ResolveSigningKey fetches issuer's DID document and parses its
// atproto verification method into a usable public key.
func (r *DIDKeyResolver) ResolveSigningKey(ctx context.Context, issuer string) (atcrypto.PublicKey, error) {
	doc, err := r.Resolver.Resolve(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("auth: resolve issuer %s: %w", issuer, err)
	}
	mb, err := doc.SigningKey()
	if err != nil {
		return nil, err
	}
	pub, err := atcrypto.ParsePublicMultibase(mb)
	if err != nil {
		return nil, fmt.Errorf("auth: parse signing key for %s: %w", issuer, err)
	}
	return pub, nil
}

// ExtractBearer pulls the raw token out of an Authorization header
// value, failing per spec.md §4.G's "absence or wrong scheme" rule.
func ExtractBearer(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", ErrMissingBearer
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", ErrMissingBearer
	}
	return token, nil
}

// Verify parses token, resolves its issuer's signing key via resolver,
// and verifies the signature, returning the issuer (reader) DID on
// success. This is the concrete realization of spec.md §4.G's external
// "verify(token, keyResolver) -> issuer" contract.
//
// atproto service-auth tokens are signed with the issuer's k256/p256
// atproto key, not a family golang-jwt verifies natively, so
// jwt/v5 is used here only to parse the header/claims structure;
// the signature itself is checked directly against atcrypto's
// verifier over the token's signing input (header.payload).
func Verify(ctx context.Context, token string, resolver KeyResolver) (string, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())

	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	issuer, err := claims.GetIssuer()
	if err != nil || issuer == "" {
		return "", fmt.Errorf("%w: missing issuer claim", ErrInvalidSignature)
	}

	pub, err := resolver.ResolveSigningKey(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	signingInput, sig, err := splitSignature(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if err := pub.HashAndVerify([]byte(signingInput), sig); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	return issuer, nil
}

// splitSignature splits a compact JWT into its signing input
// (header.payload) and decoded signature bytes.
func splitSignature(token string) (signingInput string, sig []byte, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", nil, fmt.Errorf("malformed token")
	}
	sig, err = base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", nil, fmt.Errorf("decode signature: %w", err)
	}
	return parts[0] + "." + parts[1], sig, nil
}
