package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pressly/goose/v3"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/auth"
	authPostgres "github.com/frahmantamala/attendance-management/internal/auth/postgres"
	permissionDatamodel "github.com/frahmantamala/attendance-management/internal/core/datamodel/permission"
	userDatamodel "github.com/frahmantamala/attendance-management/internal/core/datamodel/user"
	"github.com/frahmantamala/attendance-management/internal/permission"
	permissionPostgres "github.com/frahmantamala/attendance-management/internal/permission/postgres"
)

func TestCmd(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Attendance Management Suite")
}

const testConfig = `
env: development
http_server:
  port: 8081
  read_header_timeout: 5s
  read_timeout: 15s
database:
  driver: mysql
  source: "user:pass@tcp(localhost:3306)/attendance?parseTime=true"
  max_open_conns: 10
  max_idle_conns: 2
security:
  jwt_secret: "0123456789abcdef0123456789abcdef"
  bcrypt_cost: 10
permission:
  toggle_strategy: orm
`

var _ = Describe("loadConfig", func() {
	BeforeEach(func() {
		os.Unsetenv("APP_ENV")
		os.Unsetenv("DOCKER_ENV")
	})

	It("reads config.yml and fills defaults for omitted sections", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "config.yml"), []byte(testConfig), 0o600)).To(Succeed())

		cfg, err := loadConfig(dir)

		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Database.Driver).To(Equal(internal.DriverMySQL))
		Expect(cfg.Database.SQLDriverName()).To(Equal("mysql"))
		Expect(cfg.Permission.ToggleStrategy).To(Equal(internal.ToggleStrategyORM))
		Expect(cfg.Security.TokenTTL).To(Equal(7 * 24 * time.Hour))
		Expect(cfg.Security.SessionCheck).To(Equal(internal.SessionCheckTable))
		Expect(cfg.Command.Timeout).To(Equal(internal.DefaultCommandTimeout))
	})

	It("refuses a short signing secret", func() {
		dir := GinkgoT().TempDir()
		short := []byte("http_server:\n  port: 8081\ndatabase:\n  source: x\nsecurity:\n  jwt_secret: short\n")
		Expect(os.WriteFile(filepath.Join(dir, "config.yml"), short, 0o600)).To(Succeed())

		_, err := loadConfig(dir)

		Expect(err).To(MatchError(ContainSubstring("jwt_secret")))
	})
})

var _ = Describe("migrations", func() {
	It("keeps the same versions for every dialect", func() {
		versions := func(driver string) []int64 {
			migrations, err := goose.CollectMigrations(migrationDir(filepath.Join("..", "db", "migrations"), driver), 0, goose.MaxVersion)
			Expect(err).NotTo(HaveOccurred())
			out := make([]int64, 0, len(migrations))
			for _, m := range migrations {
				out = append(out, m.Version)
			}
			return out
		}

		Expect(versions(internal.DriverPostgres)).NotTo(BeEmpty())
		Expect(versions(internal.DriverMySQL)).To(Equal(versions(internal.DriverPostgres)))
	})

	It("maps the rollback flag to goose down", func() {
		Expect(migrationCommand(true)).To(Equal("down"))
		Expect(migrationCommand(false)).To(Equal("up"))
	})
})

var _ = Describe("seed", func() {
	var db *gorm.DB

	BeforeEach(func() {
		var err error
		db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		Expect(err).NotTo(HaveOccurred())
		sqlDB, err := db.DB()
		Expect(err).NotTo(HaveOccurred())
		sqlDB.SetMaxOpenConns(1)

		Expect(db.AutoMigrate(
			&userDatamodel.User{},
			&userDatamodel.Session{},
			&permissionDatamodel.Role{},
			&permissionDatamodel.Permission{},
			&permissionDatamodel.RolePermission{},
			&permissionDatamodel.UserPermission{},
		)).To(Succeed())
	})

	opts := seedOptions{AdminEmail: "root@example.com", AdminPassword: "correct-horse", BCryptCost: bcrypt.MinCost}

	It("is idempotent", func() {
		first, err := seed(context.Background(), db, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(first).To(Equal(seedReport{Roles: 3, Permissions: 5, RoleGrants: 9, Users: 3}))

		second, err := seed(context.Background(), db, opts)
		Expect(err).NotTo(HaveOccurred())
		Expect(second).To(Equal(seedReport{}))
	})

	It("leaves an admin that can sign in and holds the catalogue through its role", func() {
		_, err := seed(context.Background(), db, opts)
		Expect(err).NotTo(HaveOccurred())

		service := auth.NewService(authPostgres.NewRepository(db), authPostgres.NewSessionRepository(db),
			auth.NewJWTTokenIssuer("0123456789abcdef0123456789abcdef", 0), bcrypt.MinCost)
		resp, err := service.Authenticate(context.Background(), auth.LoginDTO{Email: "root@example.com", Password: "correct-horse"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.User.Role).To(Equal(auth.RoleAdmin))

		perms := permission.NewService(permissionPostgres.NewPermissionRepository(db), nil)
		ok, err := perms.HasPermission(context.Background(), &resp.User, permission.KeyManagePermissions)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
	})

	It("clears grants and sessions when asked", func() {
		_, err := seed(context.Background(), db, opts)
		Expect(err).NotTo(HaveOccurred())

		report, err := seed(context.Background(), db, seedOptions{Clear: true, AdminEmail: opts.AdminEmail, AdminPassword: opts.AdminPassword, BCryptCost: bcrypt.MinCost})
		Expect(err).NotTo(HaveOccurred())
		Expect(report.RoleGrants).To(Equal(9))
		Expect(report.Users).To(BeZero())
	})
})
