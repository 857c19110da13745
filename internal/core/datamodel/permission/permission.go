package permission

import "time"

type Role struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"column:name;uniqueIndex;size:50;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (Role) TableName() string {
	return "roles"
}

type Permission struct {
	ID          int64     `gorm:"primaryKey"`
	Key         string    `gorm:"column:permission_key;uniqueIndex;size:100;not null"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (Permission) TableName() string {
	return "permissions"
}

type RolePermission struct {
	RoleID       int64     `gorm:"column:role_id;primaryKey"`
	PermissionID int64     `gorm:"column:permission_id;primaryKey"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}

// UserPermission rows carry the audit columns of the grant that created them.
type UserPermission struct {
	UserID             int64     `gorm:"column:user_id;primaryKey"`
	PermissionID       int64     `gorm:"column:permission_id;primaryKey"`
	GrantedBy          string    `gorm:"column:granted_by;size:64"`
	OriginAddress      string    `gorm:"column:origin_address;size:64"`
	SessionFingerprint string    `gorm:"column:session_fingerprint;size:128"`
	CreatedAt          time.Time `gorm:"column:created_at"`
}

func (UserPermission) TableName() string {
	return "user_permissions"
}
