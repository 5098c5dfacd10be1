// Package auth gates the settings-mutation endpoint with a bearer JWT,
// grounded on the teacher's auth/token.go (HS256 signing, jwt.Claims
// embedding jwt.RegisteredClaims). The operator passphrase is verified
// with golang.org/x/crypto/bcrypt before a token is issued, the way the
// teacher's admin login path compares a stored password hash.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Claims identifies the operator that requested the settings token.
type Claims struct {
	Subject string `json:"sub"`
	jwt.RegisteredClaims
}

// Service issues and validates settings-endpoint tokens against one
// shared secret and one bcrypt-hashed operator passphrase.
type Service struct {
	secret         []byte
	passphraseHash []byte
}

// New creates an auth service. If passphraseHash is empty, IssueToken
// always fails closed — there is no default operator passphrase.
func New(secret, passphraseHash string) *Service {
	return &Service{secret: []byte(secret), passphraseHash: []byte(passphraseHash)}
}

// HashPassphrase is a helper for operators provisioning
// ADMIN_PASSPHRASE_HASH: bcrypt-hash a plaintext passphrase at the
// teacher's default cost.
func HashPassphrase(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash passphrase: %w", err)
	}
	return string(hash), nil
}

// IssueToken verifies plaintext against the configured passphrase hash
// and, on success, signs a short-lived HS256 token.
func (s *Service) IssueToken(plaintext string) (string, error) {
	if len(s.passphraseHash) == 0 {
		return "", fmt.Errorf("no operator passphrase configured")
	}
	if err := bcrypt.CompareHashAndPassword(s.passphraseHash, []byte(plaintext)); err != nil {
		return "", fmt.Errorf("invalid passphrase: %w", err)
	}

	claims := &Claims{
		Subject: "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "statarb-engine",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies tokenString against the service's
// secret.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrSignatureInvalid
	}
	return claims, nil
}
