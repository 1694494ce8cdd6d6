// Package jwttoken signs and validates the bearer tokens guarding the admin
// surface.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"onboard/internal/platform/middleware"
	domainerrors "onboard/pkg/domainerrors"
)

// Claims are the token claims carried by admin access tokens.
type Claims struct {
	User string `json:"user"`
	Site string `json:"site,omitempty"`
	jwt.RegisteredClaims
}

// Service handles token creation and validation. HS256 with a shared signing
// key; the key comes from configuration.
type Service struct {
	signingKey []byte
	issuer     string
}

func NewService(signingKey, issuer string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: issuer}
}

// GenerateToken mints a token for the given user and site.
func (s *Service) GenerateToken(user, site string, expiresIn time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		User: user,
		Site: site,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken parses and verifies a token, returning the claims the
// middleware consumes.
func (s *Service) ValidateToken(tokenString string) (*middleware.TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domainerrors.New(domainerrors.CodeUnauthorized, "token has expired")
		}
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "invalid token")
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.User == "" {
		return nil, domainerrors.New(domainerrors.CodeUnauthorized, "token missing user claim")
	}
	return &middleware.TokenClaims{User: claims.User, Site: claims.Site}, nil
}
