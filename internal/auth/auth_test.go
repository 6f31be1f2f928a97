package auth

import (
	"context"
	"testing"

	"github.com/bluesky-social/indigo/atproto/atcrypto"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractBearer(t *testing.T) {
	token, err := ExtractBearer("Bearer abc.def.ghi")
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", token)
}

func TestExtractBearerRejectsMissingOrWrongScheme(t *testing.T) {
	cases := []string{
		"",
		"abc.def.ghi",
		"Basic abc.def.ghi",
		"Bearer ",
		"bearer abc.def.ghi",
	}
	for _, header := range cases {
		_, err := ExtractBearer(header)
		assert.ErrorIs(t, err, ErrMissingBearer, "header %q", header)
	}
}

func TestSplitSignature(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iss": "did:plc:abc"}).
		SignedString([]byte("not-a-real-secret"))
	require.NoError(t, err)

	signingInput, sig, err := splitSignature(token)
	require.NoError(t, err)
	assert.NotEmpty(t, signingInput)
	assert.NotEmpty(t, sig)
}

func TestSplitSignatureRejectsMalformedToken(t *testing.T) {
	_, _, err := splitSignature("not-a-jwt")
	assert.Error(t, err)
}

type stubResolver struct {
	key atcrypto.PublicKey
	err error
}

func (s *stubResolver) ResolveSigningKey(ctx context.Context, issuer string) (atcrypto.PublicKey, error) {
	return s.key, s.err
}

func TestVerifyRejectsTokenWithoutIssuer(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{}).
		SignedString([]byte("not-a-real-secret"))
	require.NoError(t, err)

	_, err = Verify(context.Background(), token, &stubResolver{})
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsMalformedToken(t *testing.T) {
	_, err := Verify(context.Background(), "not-a-jwt", &stubResolver{})
	assert.Error(t, err)
}
