package httpapi

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// TrackingTokenManager issues the signed tokens embedded in customer
// tracking links. A token is a capability for exactly one order number;
// holding the link is the only credential a customer needs.
type TrackingTokenManager struct {
	secret   []byte
	tokenTTL time.Duration
}

type trackingClaims struct {
	jwtlib.RegisteredClaims
}

func NewTrackingTokenManager(secret string, tokenTTL time.Duration) *TrackingTokenManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 72 * time.Hour
	}
	return &TrackingTokenManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
	}
}

func (m *TrackingTokenManager) Issue(orderNumber string) (string, error) {
	now := time.Now().UTC()
	claims := trackingClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   orderNumber,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(m.tokenTTL)),
			Issuer:    "tiendaluna",
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify returns the order number the token was issued for.
func (m *TrackingTokenManager) Verify(tokenStr string) (string, error) {
	claims := &trackingClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return "", errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("invalid token subject")
	}
	return sub, nil
}
