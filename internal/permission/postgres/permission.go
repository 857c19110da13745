package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/frahmantamala/attendance-management/internal/audit"
	"github.com/frahmantamala/attendance-management/internal/command"
	permissionDatamodel "github.com/frahmantamala/attendance-management/internal/core/datamodel/permission"
	userDatamodel "github.com/frahmantamala/attendance-management/internal/core/datamodel/user"
	"github.com/frahmantamala/attendance-management/internal/permission"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

type PermissionRepository struct {
	db *gorm.DB
}

var _ permission.RepositoryAPI = (*PermissionRepository)(nil)

func NewPermissionRepository(db *gorm.DB) *PermissionRepository {
	return &PermissionRepository{db: db}
}

type permissionRow struct {
	ID          int64  `gorm:"column:id"`
	Key         string `gorm:"column:permission_key"`
	Description string `gorm:"column:description"`
}

const effectivePermissionsQuery = `
SELECT p.id, p.permission_key, p.description
  FROM permissions p
  JOIN role_permissions rp ON rp.permission_id = p.id
  JOIN roles r ON r.id = rp.role_id
 WHERE r.name = ?
UNION
SELECT p.id, p.permission_key, p.description
  FROM permissions p
  JOIN user_permissions up ON up.permission_id = p.id
 WHERE up.user_id = ?
 ORDER BY 1`

// EffectivePermissions unions role grants and direct grants. There is no
// deny list, so the union is the whole answer.
func (r *PermissionRepository) EffectivePermissions(ctx context.Context, userID int64, role string) ([]permission.Permission, error) {
	var rows []permissionRow
	if err := r.db.WithContext(ctx).Raw(effectivePermissionsQuery, role, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return toPermissions(rows), nil
}

func (r *PermissionRepository) ListPermissions(ctx context.Context) ([]permission.Permission, error) {
	var models []permissionDatamodel.Permission
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]permission.Permission, 0, len(models))
	for _, m := range models {
		out = append(out, permission.Permission{ID: m.ID, Key: m.Key, Description: m.Description})
	}
	return out, nil
}

func toPermissions(rows []permissionRow) []permission.Permission {
	out := make([]permission.Permission, 0, len(rows))
	for _, row := range rows {
		out = append(out, permission.Permission{ID: row.ID, Key: row.Key, Description: row.Description})
	}
	return out
}

// GrantRepository applies a toggle with gorm instead of the stored procedure.
// Rejections use the same {code, message} shape the procedure writes.
type GrantRepository struct {
	db  *gorm.DB
	now func() time.Time
}

var _ permission.GrantWriter = (*GrantRepository)(nil)

func NewGrantRepository(db *gorm.DB) *GrantRepository {
	return &GrantRepository{db: db, now: time.Now}
}

const (
	codeUserNotFound      = 1
	codeUnknownPermission = 2
)

// ToggleUserPermissions replaces the user's direct grants. Revoked rows are
// deleted, so the revoke delta is logged with the audit triple instead.
func (r *GrantRepository) ToggleUserPermissions(ctx context.Context, ac audit.Context, userID int64, desired []int64) (command.Result, error) {
	var (
		res           command.Result
		grant, revoke []int64
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var users int64
		if err := tx.Model(&userDatamodel.User{}).Where("id = ?", userID).Count(&users).Error; err != nil {
			return err
		}
		if users == 0 {
			res = command.NewResult(command.Entry{Code: codeUserNotFound, Message: "User not found"})
			return res.Err()
		}

		if len(desired) > 0 {
			var known int64
			if err := tx.Model(&permissionDatamodel.Permission{}).Where("id IN ?", desired).Count(&known).Error; err != nil {
				return err
			}
			if known != int64(len(desired)) {
				res = command.NewResult(command.Entry{Code: codeUnknownPermission, Message: "One or more permission ids do not exist"})
				return res.Err()
			}
		}

		current, err := currentGrants(tx, userID)
		if err != nil {
			return err
		}
		grant, revoke = permission.Delta(current, desired)

		if len(revoke) > 0 {
			if err := tx.Where("user_id = ? AND permission_id IN ?", userID, revoke).
				Delete(&permissionDatamodel.UserPermission{}).Error; err != nil {
				return err
			}
		}
		if len(grant) > 0 {
			now := r.now()
			rows := make([]permissionDatamodel.UserPermission, 0, len(grant))
			for _, id := range grant {
				rows = append(rows, permissionDatamodel.UserPermission{
					UserID:             userID,
					PermissionID:       id,
					GrantedBy:          ac.ActorID,
					OriginAddress:      ac.OriginAddress,
					SessionFingerprint: ac.SessionFingerprint,
					CreatedAt:          now,
				})
			}
			if err := tx.Create(&rows).Error; err != nil {
				return err
			}
		}

		res = command.NewResult(
			command.Entry{Code: 0, Message: "Permissions updated"},
			command.Entry{Code: 0, Message: fmt.Sprintf("granted: %d", len(grant))},
			command.Entry{Code: 0, Message: fmt.Sprintf("revoked: %d", len(revoke))},
		)
		return nil
	})
	if err != nil {
		if res.Outcome == command.OutcomeRejected {
			return res, err
		}
		return command.Result{}, fmt.Errorf("toggle user permissions: %w", err)
	}
	logger.From(ctx).InfoContext(ctx, "direct grants toggled",
		"user_id", userID,
		"granted", grant,
		"revoked", revoke,
		"actor_id", ac.ActorID,
		"origin_address", ac.OriginAddress,
		"fingerprint", ac.SessionFingerprint)
	return res, nil
}

func currentGrants(tx *gorm.DB, userID int64) ([]int64, error) {
	q := tx.Model(&permissionDatamodel.UserPermission{}).Where("user_id = ?", userID)
	if tx.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ids []int64
	if err := q.Pluck("permission_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
