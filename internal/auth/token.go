package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/frahmantamala/attendance-management/internal"
)

type Claims struct {
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	AssignType string `json:"assign_type"`
	AssignToID *int64 `json:"assign_to_id"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{
		UserID:     c.UserID,
		Email:      c.Email,
		Username:   c.Username,
		Role:       c.AssignType,
		AssignToID: c.AssignToID,
	}
}

// TokenIssuer mints and verifies signed tokens. Parse returns
// internal.ErrTokenExpired or internal.ErrTokenInvalid on failure.
type TokenIssuer interface {
	Issue(identity Identity) (token string, expiresAt time.Time, err error)
	Parse(token string) (*Claims, error)
}

type JWTTokenIssuer struct {
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time
}

var _ TokenIssuer = (*JWTTokenIssuer)(nil)

func NewJWTTokenIssuer(secret string, ttl time.Duration) *JWTTokenIssuer {
	if ttl <= 0 {
		ttl = internal.DefaultTokenTTL
	}
	return &JWTTokenIssuer{
		Secret: []byte(secret),
		TTL:    ttl,
		Now:    time.Now,
	}
}

func (j *JWTTokenIssuer) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

func (j *JWTTokenIssuer) Issue(identity Identity) (string, time.Time, error) {
	issuedAt := j.now()
	expiresAt := issuedAt.Add(j.TTL)

	claims := &Claims{
		UserID:     identity.UserID,
		Email:      identity.Email,
		Username:   identity.Username,
		AssignType: identity.Role,
		AssignToID: identity.AssignToID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identity.ActorID(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (j *JWTTokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return j.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, internal.ErrTokenExpired
		}
		return nil, internal.ErrTokenInvalid.WithCause(err)
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, internal.ErrTokenInvalid
	}
	return claims, nil
}
