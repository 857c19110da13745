package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/auth"
	userDatamodel "github.com/frahmantamala/attendance-management/internal/core/datamodel/user"
)

type Repository struct {
	db *gorm.DB
}

var _ auth.UserRepository = (*Repository)(nil)

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) GetCredentialsByEmail(ctx context.Context, email string) (*auth.Credentials, error) {
	var u userDatamodel.User
	err := r.db.WithContext(ctx).
		Where("email = ? AND is_active = ?", email, true).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}

	return &auth.Credentials{
		Identity:     toIdentity(u),
		PasswordHash: u.PasswordHash,
	}, nil
}

func (r *Repository) CreateUser(ctx context.Context, nu auth.NewUser) (*auth.Identity, error) {
	var existing int64
	if err := r.db.WithContext(ctx).Model(&userDatamodel.User{}).
		Where("email = ?", nu.Email).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, internal.ErrEmailTaken
	}

	u := userDatamodel.User{
		Email:        nu.Email,
		Username:     nu.Username,
		PasswordHash: nu.PasswordHash,
		AssignType:   nu.AssignType,
		IsActive:     true,
	}
	if err := r.db.WithContext(ctx).Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, internal.ErrEmailTaken
		}
		return nil, err
	}

	identity := toIdentity(u)
	return &identity, nil
}

func toIdentity(u userDatamodel.User) auth.Identity {
	return auth.Identity{
		UserID:     u.ID,
		Email:      u.Email,
		Username:   u.Username,
		Role:       u.AssignType,
		AssignToID: u.AssignToID,
	}
}

// SessionRepository stores one row per signed-in client.
type SessionRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var (
	_ auth.SessionStore   = (*SessionRepository)(nil)
	_ auth.SessionChecker = (*SessionRepository)(nil)
)

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db, now: time.Now}
}

func (r *SessionRepository) CreateSession(ctx context.Context, s auth.Session) error {
	row := userDatamodel.Session{
		ID:        s.ID,
		Token:     s.Token,
		UserID:    s.UserID,
		ExpiresAt: s.ExpiresAt.UTC(),
		CreatedAt: s.CreatedAt.UTC(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

func (r *SessionRepository) DeleteSession(ctx context.Context, token string) error {
	return r.db.WithContext(ctx).
		Where("token = ?", token).
		Delete(&userDatamodel.Session{}).Error
}

// CheckSession treats a missing row and an expired row the same way.
func (r *SessionRepository) CheckSession(ctx context.Context, token string) error {
	var live int64
	err := r.db.WithContext(ctx).Model(&userDatamodel.Session{}).
		Where("token = ? AND expires_at > ?", token, r.now().UTC()).
		Count(&live).Error
	if err != nil {
		return err
	}
	if live == 0 {
		return internal.ErrSessionInvalid
	}
	return nil
}
