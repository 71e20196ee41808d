// Package auth resolves the identity a connection joins as.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingIdentity  = errors.New("missing identity")
	ErrInvalidToken     = errors.New("invalid token")
	ErrIdentityMismatch = errors.New("declared identity does not match token")
)

const issuer = "chatrelay"

// Credentials is what a client presents when joining.
type Credentials struct {
	UserID string
	Token  string
}

// Verifier turns join credentials into the user id the connection is bound to.
type Verifier interface {
	Verify(ctx context.Context, creds Credentials) (string, error)
}

// TrustVerifier accepts the declared user id as-is.
type TrustVerifier struct{}

func (TrustVerifier) Verify(_ context.Context, creds Credentials) (string, error) {
	if creds.UserID == "" {
		return "", ErrMissingIdentity
	}
	return creds.UserID, nil
}

// Claims carried by relay tokens.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// JWTVerifier accepts HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(_ context.Context, creds Credentials) (string, error) {
	if creds.Token == "" {
		return "", ErrMissingIdentity
	}
	token, err := jwt.ParseWithClaims(creds.Token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return "", fmt.Errorf("%w: no user in token", ErrInvalidToken)
	}
	if creds.UserID != "" && creds.UserID != userID {
		return "", ErrIdentityMismatch
	}
	return userID, nil
}

// Issue signs a token for userID valid for ttl.
func (v *JWTVerifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
