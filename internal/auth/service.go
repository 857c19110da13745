package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/core/ids"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

type ServiceAPI interface {
	Authenticate(ctx context.Context, dto LoginDTO) (AuthResponse, error)
	SignUp(ctx context.Context, dto SignUpDTO) (*Identity, error)
	Revoke(ctx context.Context, token string) error
}

// Service issues credentials: it checks passwords, mints tokens and owns the
// session rows that back them.
type Service struct {
	users      UserRepository
	sessions   SessionStore
	tokens     TokenIssuer
	bcryptCost int
	logger     *slog.Logger
	now        func() time.Time
}

var _ ServiceAPI = (*Service)(nil)

func NewService(users UserRepository, sessions SessionStore, tokens TokenIssuer, bcryptCost int) *Service {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger.LoggerWrapper(),
		now:        time.Now,
	}
}

// Authenticate checks credentials and opens a session whose expiry matches
// the token's own.
func (s *Service) Authenticate(ctx context.Context, dto LoginDTO) (AuthResponse, error) {
	dto.Email = strings.ToLower(strings.TrimSpace(dto.Email))
	if err := dto.Validate(); err != nil {
		return AuthResponse{}, err
	}

	creds, err := s.users.GetCredentialsByEmail(ctx, dto.Email)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return AuthResponse{}, internal.ErrUserNotFound
		}
		return AuthResponse{}, internal.NewTransportError("failed to look up user", err)
	}

	if err := VerifyPassword(creds.PasswordHash, dto.Password); err != nil {
		s.logger.WarnContext(ctx, "sign-in rejected", "user_id", creds.UserID, "reason", "password mismatch")
		return AuthResponse{}, internal.ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.Issue(creds.Identity)
	if err != nil {
		return AuthResponse{}, internal.NewInternalError("failed to issue token", err)
	}

	now := s.now()
	session := Session{
		ID:        ids.NewAt(now),
		Token:     token,
		UserID:    creds.UserID,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := s.sessions.CreateSession(ctx, session); err != nil {
		return AuthResponse{}, internal.NewTransportError("failed to persist session", err)
	}

	s.logger.InfoContext(ctx, "user signed in", "user_id", creds.UserID, "session_id", session.ID)
	return AuthResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      creds.Identity,
	}, nil
}

func (s *Service) SignUp(ctx context.Context, dto SignUpDTO) (*Identity, error) {
	dto.Normalize()
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	hash, err := HashPassword(dto.Password, s.bcryptCost)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	identity, err := s.users.CreateUser(ctx, NewUser{
		Email:        dto.Email,
		Username:     dto.Username,
		PasswordHash: hash,
		AssignType:   RoleStudent,
	})
	if err != nil {
		if errors.Is(err, internal.ErrEmailTaken) {
			return nil, internal.ErrEmailTaken
		}
		return nil, internal.NewTransportError("failed to create user", err)
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", identity.UserID)
	return identity, nil
}

// Revoke deletes the session for token. Revoking an unknown token is not an
// error.
func (s *Service) Revoke(ctx context.Context, token string) error {
	if strings.TrimSpace(token) == "" {
		return internal.ErrMissingToken
	}
	if err := s.sessions.DeleteSession(ctx, token); err != nil {
		return internal.NewTransportError("failed to revoke session", err)
	}
	return nil
}

func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
