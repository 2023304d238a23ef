// Package auth verifies and issues the bearer credentials that carry caller identity.
package auth

import (
	"errors"
	"fmt"
	"time"

	"marketchat/backend/internal/models"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Claims is the credential payload: subject identity plus the provider flag.
type Claims struct {
	IsProvider bool `json:"is_provider"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 credentials signed with the shared secret.
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer}
}

// Verify returns the identity behind token or models.ErrInvalidCredential.
func (v *Verifier) Verify(token string) (models.Identity, error) {
	if token == "" {
		return models.Identity{}, fmt.Errorf("%w: token missing", models.ErrInvalidCredential)
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", models.ErrInvalidCredential, err)
	}
	if claims.Subject == "" {
		return models.Identity{}, fmt.Errorf("%w: subject missing", models.ErrInvalidCredential)
	}
	return models.Identity{ID: claims.Subject, IsProvider: claims.IsProvider}, nil
}

// Issuer mints credentials. Used by the admin CLI and tests.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

func NewIssuer(secret, issuer string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is empty")
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl}, nil
}

// Issue signs a credential for identity.
func (i *Issuer) Issue(identity models.Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		IsProvider: identity.IsProvider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
