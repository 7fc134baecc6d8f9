package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"campustrack/internal/identity"
)

// Claims represents the JWT payload. Subject carries the user id.
type Claims struct {
	UID7         string `json:"uid7"`
	Role         string `json:"role"`
	UniversityID string `json:"universityId"`
	ProfileRef   string `json:"profileRef"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the request identity.
func (c Claims) Actor() identity.Actor {
	return identity.Actor{
		UserID:       c.Subject,
		UID7:         c.UID7,
		Role:         identity.Role(c.Role),
		UniversityID: c.UniversityID,
		ProfileRef:   c.ProfileRef,
	}
}

// Issue signs an access token for actor.
func Issue(actor identity.Actor, issuer, key string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		UID7:         actor.UID7,
		Role:         string(actor.Role),
		UniversityID: actor.UniversityID,
		ProfileRef:   actor.ProfileRef,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   actor.UserID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// Parse validates a token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(key), nil
	})
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if issuer != "" && claims.Issuer != issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	if !identity.Role(claims.Role).Valid() || !identity.ValidUID7(claims.UID7) {
		return Claims{}, errors.New("malformed claims")
	}
	return *claims, nil
}
