// Package auth verifies bearer tokens issued by the identity provider.
//
// Tokens are Ed25519-signed (EdDSA) JWTs. The verifier loads the provider's
// public key from a PEM file, or generates an ephemeral key pair for
// development when no key file is configured.
package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims extends jwt.RegisteredClaims with provider-specific fields.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// AccountID returns the subject as a parsed account UUID.
func (c *Claims) AccountID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// Verifier validates bearer tokens against the provider's Ed25519 public key.
type Verifier struct {
	publicKey ed25519.PublicKey
	issuer    string

	// privateKey is only set in ephemeral development mode, where the
	// verifier doubles as the token issuer.
	privateKey ed25519.PrivateKey
}

// NewVerifier creates a Verifier from a PEM public key file. If the path is
// empty, an ephemeral key pair is generated (for development).
func NewVerifier(publicKeyPath, issuer string) (*Verifier, error) {
	if publicKeyPath == "" {
		slog.Warn("auth: no public key file configured, generating ephemeral key pair (not for production)")
		pub, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("auth: generate key pair: %w", err)
		}
		return &Verifier{publicKey: pub, privateKey: priv, issuer: issuer}, nil
	}

	pubPEM, err := os.ReadFile(publicKeyPath) //nolint:gosec // path comes from validated config, not user input
	if err != nil {
		return nil, fmt.Errorf("auth: read public key: %w", err)
	}
	block, _ := pem.Decode(pubPEM)
	if block == nil {
		return nil, fmt.Errorf("auth: decode public key PEM")
	}
	pubKey, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	edPub, ok := pubKey.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("auth: public key is not Ed25519")
	}

	return &Verifier{publicKey: edPub, issuer: issuer}, nil
}

// Verify parses and validates a bearer token, returning the claims.
func (v *Verifier) Verify(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&Claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return v.publicKey, nil
		},
		jwt.WithIssuer(v.issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("auth: validate token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, fmt.Errorf("auth: invalid subject (expected UUID): %w", err)
	}

	return claims, nil
}

// IssueToken signs a token for the given account. Only available in
// ephemeral development mode; with a configured public key the identity
// provider is the sole issuer.
func (v *Verifier) IssueToken(accountID uuid.UUID, email string, ttl time.Duration) (string, time.Time, error) {
	if v.privateKey == nil {
		return "", time.Time{}, fmt.Errorf("auth: token issuance unavailable without ephemeral keys")
	}

	now := time.Now().UTC()
	exp := now.Add(ttl)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.New().String(),
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(v.privateKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, exp, nil
}
