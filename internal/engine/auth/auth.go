// Package auth checks the shared admin credentials and issues the signed,
// time-boxed tokens that guard the dashboard routes.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"internfunnel/internal/apperr"
	"internfunnel/internal/config"
)

const (
	TokenTTL  = 24 * time.Hour
	RoleAdmin = "admin"
	issuer    = "internfunnel"
)

var errInvalidToken = errors.New("invalid token")

// Claims is the token payload.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	Username     string
	Password     string
	PasswordHash string
	Secret       string
	TTL          time.Duration
	Now          func() time.Time
}

func NewService(cfg *config.Config) Service {
	return Service{
		Username:     cfg.Auth.AdminUsername,
		Password:     cfg.Auth.AdminPassword,
		PasswordHash: cfg.Auth.PasswordHash,
		Secret:       cfg.Auth.JWTSecret,
		TTL:          TokenTTL,
		Now:          time.Now,
	}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return TokenTTL
}

// CheckCredentials compares against the configured admin account. A bcrypt
// hash takes precedence over a plaintext password.
func (s Service) CheckCredentials(username, password string) error {
	if s.Username == "" || (s.Password == "" && s.PasswordHash == "") {
		return apperr.Config("admin credentials not configured")
	}
	if username == "" {
		return apperr.MissingField("username")
	}
	if password == "" {
		return apperr.MissingField("password")
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.Username)) == 1
	var passOK bool
	if s.PasswordHash != "" {
		passOK = bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(password)) == nil
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(s.Password)) == 1
	}
	if !userOK || !passOK {
		return apperr.Unauthorized("Invalid credentials")
	}
	return nil
}

// Issue signs an admin token for username.
func (s Service) Issue(username string) (string, time.Time, error) {
	if strings.TrimSpace(s.Secret) == "" {
		return "", time.Time{}, apperr.Config("JWT secret not configured")
	}
	now := s.now()
	exp := now.Add(s.ttl())
	claims := Claims{
		Username: username,
		Role:     RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Secret))
	if err != nil {
		return "", time.Time{}, apperr.Internal(err)
	}
	return token, exp, nil
}

// Login checks credentials and issues a token.
func (s Service) Login(username, password string) (string, time.Time, error) {
	if err := s.CheckCredentials(username, password); err != nil {
		return "", time.Time{}, err
	}
	return s.Issue(username)
}

// Verify parses token and requires the admin role. Every failure is
// reported as unauthorized.
func (s Service) Verify(token string) (Claims, error) {
	if strings.TrimSpace(s.Secret) == "" {
		return Claims{}, apperr.Config("JWT secret not configured")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(s.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, &apperr.Error{Kind: apperr.KindUnauthorized, Message: "Unauthorized", Err: err}
	}
	if claims.Role != RoleAdmin || claims.Username == "" {
		return Claims{}, &apperr.Error{Kind: apperr.KindUnauthorized, Message: "Unauthorized", Err: errInvalidToken}
	}
	return *claims, nil
}

// HashPassword returns a bcrypt hash suitable for auth.password_hash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", apperr.MissingField("password")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
