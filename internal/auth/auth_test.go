package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v, err := NewVerifier("", "shuren-auth")
	require.NoError(t, err)

	accountID := uuid.New()
	token, exp, err := v.IssueToken(accountID, "yuki@example.com", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := v.Verify(token)
	require.NoError(t, err)

	got, err := claims.AccountID()
	require.NoError(t, err)
	assert.Equal(t, accountID, got)
	assert.Equal(t, "yuki@example.com", claims.Email)
}

func TestVerifyRejectsExpired(t *testing.T) {
	v, err := NewVerifier("", "shuren-auth")
	require.NoError(t, err)

	token, _, err := v.IssueToken(uuid.New(), "", -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	issuing, err := NewVerifier("", "someone-else")
	require.NoError(t, err)
	v, err := NewVerifier("", "shuren-auth")
	require.NoError(t, err)

	// Share the key so only the issuer claim differs.
	v.publicKey = issuing.publicKey

	token, _, err := issuing.IssueToken(uuid.New(), "", time.Hour)
	require.NoError(t, err)

	_, err = v.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	issuing, err := NewVerifier("", "shuren-auth")
	require.NoError(t, err)
	verifying, err := NewVerifier("", "shuren-auth")
	require.NoError(t, err)

	token, _, err := issuing.IssueToken(uuid.New(), "", time.Hour)
	require.NoError(t, err)

	_, err = verifying.Verify(token)
	assert.Error(t, err)
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	v, err := NewVerifier("", "shuren-auth")
	require.NoError(t, err)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   uuid.New().String(),
			Issuer:    "shuren-auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("not-an-ed25519-key"))
	require.NoError(t, err)

	_, err = v.Verify(signed)
	assert.Error(t, err)
}

func TestVerifyRejectsNonUUIDSubject(t *testing.T) {
	v, err := NewVerifier("", "shuren-auth")
	require.NoError(t, err)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "not-a-uuid",
			Issuer:    "shuren-auth",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(v.privateKey)
	require.NoError(t, err)

	_, err = v.Verify(signed)
	assert.Error(t, err)
}

func TestIssueTokenRequiresEphemeralMode(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	v := &Verifier{publicKey: pub, issuer: "shuren-auth"}
	_, _, err = v.IssueToken(uuid.New(), "", time.Hour)
	assert.Error(t, err)
}
