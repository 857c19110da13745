package user

import "time"

type User struct {
	ID           int64     `gorm:"primaryKey"`
	Email        string    `gorm:"column:email;uniqueIndex;size:255;not null"`
	Username     string    `gorm:"column:username;size:100;not null"`
	PasswordHash string    `gorm:"column:password_hash;not null"`
	AssignType   string    `gorm:"column:assign_type;size:50;not null"`
	AssignToID   *int64    `gorm:"column:assign_to_id"`
	IsActive     bool      `gorm:"column:is_active;default:true"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}

// Session is deleted at sign-out, never soft-flagged.
type Session struct {
	ID        string    `gorm:"primaryKey;size:26"`
	Token     string    `gorm:"column:token;uniqueIndex;size:512;not null"`
	UserID    int64     `gorm:"column:user_id;index;not null"`
	ExpiresAt time.Time `gorm:"column:expires_at;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Session) TableName() string {
	return "sessions"
}
