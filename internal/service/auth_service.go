package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for hashing the admin password
	BcryptCost = 10

	adminSubject = "admin"
	tokenIssuer  = "price-catalog"
)

var (
	ErrInvalidCredentials = errors.New("invalid password")
	ErrInvalidToken       = errors.New("invalid token")
)

// CredentialChecker decides whether a submitted password is acceptable
type CredentialChecker interface {
	Check(ctx context.Context, password string) error
}

// TokenIssuer hands out and verifies the opaque admin token
type TokenIssuer interface {
	Issue() (string, error)
	Verify(token string) error
}

// BcryptChecker compares against a single shared secret
type BcryptChecker struct {
	hash []byte
}

// NewBcryptChecker hashes the shared secret once at start-up
func NewBcryptChecker(password string) (*BcryptChecker, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash admin password: %w", err)
	}
	return &BcryptChecker{hash: hash}, nil
}

func (c *BcryptChecker) Check(_ context.Context, password string) error {
	if err := bcrypt.CompareHashAndPassword(c.hash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// StaticTokenIssuer always returns the same configured token.
// It is a client-side gate only: no expiry, no signing.
type StaticTokenIssuer struct {
	token string
}

func NewStaticTokenIssuer(token string) *StaticTokenIssuer {
	return &StaticTokenIssuer{token: token}
}

func (i *StaticTokenIssuer) Issue() (string, error) {
	return i.token, nil
}

func (i *StaticTokenIssuer) Verify(token string) error {
	if i.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) != 1 {
		return ErrInvalidToken
	}
	return nil
}

// JWTTokenIssuer signs HS256 tokens without an expiry claim
type JWTTokenIssuer struct {
	secret []byte
}

func NewJWTTokenIssuer(secret string) *JWTTokenIssuer {
	return &JWTTokenIssuer{secret: []byte(secret)}
}

func (i *JWTTokenIssuer) Issue() (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  adminSubject,
		Issuer:   tokenIssuer,
		IssuedAt: jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (i *JWTTokenIssuer) Verify(tokenString string) error {
	var claims jwt.RegisteredClaims

	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithSubject(adminSubject))
	if err != nil || !token.Valid {
		return ErrInvalidToken
	}
	return nil
}

// AuthService handles the admin login
type AuthService interface {
	Login(ctx context.Context, password string) (string, error)
	VerifyToken(token string) error
}

type authService struct {
	checker CredentialChecker
	issuer  TokenIssuer
}

// NewAuthService creates a new instance of AuthService
func NewAuthService(checker CredentialChecker, issuer TokenIssuer) AuthService {
	return &authService{checker: checker, issuer: issuer}
}

func (s *authService) Login(ctx context.Context, password string) (string, error) {
	if err := s.checker.Check(ctx, password); err != nil {
		return "", err
	}
	return s.issuer.Issue()
}

func (s *authService) VerifyToken(token string) error {
	return s.issuer.Verify(token)
}
