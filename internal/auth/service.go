// Package auth guards the API behind the shared household password.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/fdg312/meal-calendar/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

// HouseholdSubject is the sub claim of every issued token; the whole
// household shares one identity.
const HouseholdSubject = "household"

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidPassword = errors.New("invalid password")
	ErrAuthDisabled    = errors.New("password login is not configured")
)

// Service issues and verifies access tokens.
type Service struct {
	config *config.Config
	now    func() time.Time
}

func NewService(cfg *config.Config) *Service {
	return &Service{config: cfg, now: time.Now}
}

func (s *Service) ttl() time.Duration {
	hours := s.config.JWTTTLHours
	if hours <= 0 {
		hours = 720
	}
	return time.Duration(hours) * time.Hour
}

// Login exchanges the household password for a bearer token.
func (s *Service) Login(password string) (*LoginResponse, error) {
	if s.config.AuthPassword == "" {
		return nil, ErrAuthDisabled
	}
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.config.AuthPassword)) != 1 {
		return nil, ErrInvalidPassword
	}

	ttl := s.ttl()
	token, err := s.generateJWT(HouseholdSubject, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to generate JWT: %w", err)
	}

	return &LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(ttl.Seconds()),
	}, nil
}

func (s *Service) generateJWT(subject string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iss": s.config.JWTIssuer,
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.config.JWTSecret))
}

// VerifyJWT returns the subject of a valid token.
func (s *Service) VerifyJWT(tokenString string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.config.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.JWTIssuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	}, opts...)
	if err != nil {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", ErrInvalidToken
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}
