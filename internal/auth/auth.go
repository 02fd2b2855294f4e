package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid join token")
	ErrExpiredToken = errors.New("join token expired")
	ErrEmptySecret  = errors.New("join token secret is empty")
)

const DefaultTokenTTL = 2 * time.Hour

// Claims binds a participant identity to the treatment condition the
// recruiting survey assigned them.
type Claims struct {
	Generation int    `json:"gen"`
	Variation  int    `json:"var"`
	KTF        bool   `json:"ktf,omitempty"`
	NearMiss   string `json:"nm,omitempty"`
	jwt.RegisteredClaims
}

type JoinRequest struct {
	ParticipantID string `json:"participant_id"`
	Generation    int    `json:"generation"`
	Variation     int    `json:"variation"`
	KTF           bool   `json:"ktf"`
	NearMiss      string `json:"near_miss"`
}

// Issue signs a join token for req valid for ttl.
func Issue(secret []byte, req JoinRequest, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	if req.ParticipantID == "" {
		return "", fmt.Errorf("%w: missing participant id", ErrInvalidToken)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := Claims{
		Generation: req.Generation,
		Variation:  req.Variation,
		KTF:        req.KTF,
		NearMiss:   req.NearMiss,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.ParticipantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify parses a join token and checks its signature and expiry.
func Verify(token string, secret []byte) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
