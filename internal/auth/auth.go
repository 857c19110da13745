package auth

import (
	"context"
	"strconv"
	"time"
)

// Assign types double as roles.
const (
	RoleAdmin    = "admin"
	RoleLecturer = "lecturer"
	RoleStudent  = "student"
)

// Identity is decoded from a token and never changes for that token's life.
type Identity struct {
	UserID     int64  `json:"user_id"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Role       string `json:"assign_type"`
	AssignToID *int64 `json:"assign_to_id,omitempty"`
}

func (i Identity) ActorID() string {
	return strconv.FormatInt(i.UserID, 10)
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// ActingAs is the domain record a non-admin identity acts on behalf of,
// falling back to the user id.
func (i Identity) ActingAs() int64 {
	if !i.IsAdmin() && i.AssignToID != nil {
		return *i.AssignToID
	}
	return i.UserID
}

// Credentials is what the store hands back for a sign-in attempt.
type Credentials struct {
	Identity
	PasswordHash string
}

type NewUser struct {
	Email        string
	Username     string
	PasswordHash string
	AssignType   string
}

type Session struct {
	ID        string
	Token     string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}

type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      Identity  `json:"user"`
}

// UserRepository returns internal.ErrUserNotFound for unknown or inactive
// users and internal.ErrEmailTaken on a duplicate email.
type UserRepository interface {
	GetCredentialsByEmail(ctx context.Context, email string) (*Credentials, error)
	CreateUser(ctx context.Context, u NewUser) (*Identity, error)
}

type SessionStore interface {
	CreateSession(ctx context.Context, s Session) error
	DeleteSession(ctx context.Context, token string) error
}

// SessionChecker returns nil for a live session and internal.ErrSessionInvalid
// for an absent or expired one. Any other error is a backing-store failure.
type SessionChecker interface {
	CheckSession(ctx context.Context, token string) error
}

type ctxKey string

const (
	identityKey ctxKey = "identity"
	tokenKey    ctxKey = "token"
)

func ContextWithIdentity(ctx context.Context, identity *Identity, token string) context.Context {
	ctx = context.WithValue(ctx, identityKey, identity)
	return context.WithValue(ctx, tokenKey, token)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	id, ok := ctx.Value(identityKey).(*Identity)
	return id, ok && id != nil
}

func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}
