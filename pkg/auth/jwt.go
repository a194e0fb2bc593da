package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jwalitptl/therapy-scheduler/internal/model"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carries the caller identity inside a bearer token.
type Claims struct {
	jwt.RegisteredClaims
	UserID      int64      `json:"user_id"`
	Email       string     `json:"email,omitempty"`
	Role        model.Role `json:"role"`
	TherapistID *int64     `json:"therapist_id,omitempty"`
}

// Caller converts the claims into the request identity.
func (c *Claims) Caller() model.Caller {
	return model.Caller{
		UserID:      c.UserID,
		Email:       c.Email,
		Role:        c.Role,
		TherapistID: c.TherapistID,
	}
}

type JWTService interface {
	GenerateAccessToken(caller model.Caller, ttl time.Duration) (string, error)
	ValidateToken(token string) (*Claims, error)
}

type jwtService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewJWTService(secret, issuer string) JWTService {
	return &jwtService{secret: []byte(secret), issuer: issuer, now: time.Now}
}

func (s *jwtService) GenerateAccessToken(caller model.Caller, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   fmt.Sprintf("%d", caller.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:      caller.UserID,
		Email:       caller.Email,
		Role:        caller.Role,
		TherapistID: caller.TherapistID,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

func (s *jwtService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}
	return claims, nil
}
