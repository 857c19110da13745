package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/attendance-management/internal/auth"
	permissionDatamodel "github.com/frahmantamala/attendance-management/internal/core/datamodel/permission"
	userDatamodel "github.com/frahmantamala/attendance-management/internal/core/datamodel/user"
	"github.com/frahmantamala/attendance-management/internal/permission"
)

var (
	seedAdminEmail    string
	seedAdminPassword string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed roles, permissions and an admin account",
	Long:  `Seed the role catalogue, the permission catalogue, the default role grants and sample accounts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		db, err := initDB(cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		defer db.Close()

		orm, err := initORM(db.DB, cfg.Database.Driver)
		if err != nil {
			return fmt.Errorf("failed to init orm: %w", err)
		}

		report, err := seed(cmd.Context(), orm, seedOptions{
			Clear:         clearData,
			AdminEmail:    seedAdminEmail,
			AdminPassword: seedAdminPassword,
			BCryptCost:    cfg.Security.BCryptCost,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Seeded %d roles, %d permissions, %d role grants, %d users\n",
			report.Roles, report.Permissions, report.RoleGrants, report.Users)
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedAdminEmail, "admin-email", "admin@attendance.local", "email of the seeded admin account")
	seedCmd.Flags().StringVar(&seedAdminPassword, "admin-password", "password", "password of the seeded accounts")
}

type seedOptions struct {
	Clear         bool
	AdminEmail    string
	AdminPassword string
	BCryptCost    int
}

// seedReport counts rows created by this run; existing rows are left alone.
type seedReport struct {
	Roles       int
	Permissions int
	RoleGrants  int
	Users       int
}

var seedPermissions = []struct {
	Key  string
	Desc string
}{
	{permission.KeyManagePermissions, "Grant and revoke direct permissions"},
	{permission.KeyMarkAttendance, "Record attendance for a class session"},
	{permission.KeyViewAttendance, "View attendance records"},
	{permission.KeyReviewLeave, "Approve or reject leave requests"},
	{permission.KeySubmitLeave, "Submit leave requests"},
}

var seedRoleGrants = map[string][]string{
	auth.RoleAdmin: {
		permission.KeyManagePermissions,
		permission.KeyMarkAttendance,
		permission.KeyViewAttendance,
		permission.KeyReviewLeave,
	},
	auth.RoleLecturer: {
		permission.KeyMarkAttendance,
		permission.KeyViewAttendance,
		permission.KeyReviewLeave,
	},
	auth.RoleStudent: {
		permission.KeyViewAttendance,
		permission.KeySubmitLeave,
	},
}

func seed(ctx context.Context, db *gorm.DB, opts seedOptions) (seedReport, error) {
	var report seedReport

	hash, err := auth.HashPassword(opts.AdminPassword, opts.BCryptCost)
	if err != nil {
		return report, fmt.Errorf("hash seed password: %w", err)
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if opts.Clear {
			for _, model := range []interface{}{
				&userDatamodel.Session{},
				&permissionDatamodel.UserPermission{},
				&permissionDatamodel.RolePermission{},
				&permissionDatamodel.Permission{},
				&permissionDatamodel.Role{},
			} {
				if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
					return fmt.Errorf("clear %T: %w", model, err)
				}
			}
		}

		now := time.Now().UTC()
		roleIDs := make(map[string]int64, 3)
		for _, name := range []string{auth.RoleAdmin, auth.RoleLecturer, auth.RoleStudent} {
			role := permissionDatamodel.Role{Name: name}
			res := tx.Where("name = ?", name).Attrs(permissionDatamodel.Role{CreatedAt: now}).FirstOrCreate(&role)
			if res.Error != nil {
				return fmt.Errorf("seed role %s: %w", name, res.Error)
			}
			report.Roles += int(res.RowsAffected)
			roleIDs[name] = role.ID
		}

		permissionIDs := make(map[string]int64, len(seedPermissions))
		for _, p := range seedPermissions {
			perm := permissionDatamodel.Permission{Key: p.Key}
			res := tx.Where("permission_key = ?", p.Key).
				Attrs(permissionDatamodel.Permission{Description: p.Desc, CreatedAt: now}).
				FirstOrCreate(&perm)
			if res.Error != nil {
				return fmt.Errorf("seed permission %s: %w", p.Key, res.Error)
			}
			report.Permissions += int(res.RowsAffected)
			permissionIDs[p.Key] = perm.ID
		}

		for role, keys := range seedRoleGrants {
			for _, key := range keys {
				grant := permissionDatamodel.RolePermission{RoleID: roleIDs[role], PermissionID: permissionIDs[key]}
				res := tx.Where(&grant).Attrs(permissionDatamodel.RolePermission{CreatedAt: now}).FirstOrCreate(&grant)
				if res.Error != nil {
					return fmt.Errorf("seed grant %s/%s: %w", role, key, res.Error)
				}
				report.RoleGrants += int(res.RowsAffected)
			}
		}

		accounts := []userDatamodel.User{
			{Email: opts.AdminEmail, Username: "admin", AssignType: auth.RoleAdmin},
			{Email: "lecturer@attendance.local", Username: "lecturer", AssignType: auth.RoleLecturer},
			{Email: "student@attendance.local", Username: "student", AssignType: auth.RoleStudent},
		}
		for _, account := range accounts {
			user := userDatamodel.User{}
			res := tx.Where("email = ?", account.Email).Attrs(userDatamodel.User{
				Email:        account.Email,
				Username:     account.Username,
				PasswordHash: hash,
				AssignType:   account.AssignType,
				IsActive:     true,
				CreatedAt:    now,
				UpdatedAt:    now,
			}).FirstOrCreate(&user)
			if res.Error != nil {
				return fmt.Errorf("seed user %s: %w", account.Email, res.Error)
			}
			report.Users += int(res.RowsAffected)
		}
		return nil
	})
	return report, err
}
