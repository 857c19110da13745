package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	gormMySQL "gorm.io/driver/mysql"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/frahmantamala/attendance-management/api"
	"github.com/frahmantamala/attendance-management/internal"
	"github.com/frahmantamala/attendance-management/internal/attendance"
	"github.com/frahmantamala/attendance-management/internal/audit"
	"github.com/frahmantamala/attendance-management/internal/auth"
	authPostgres "github.com/frahmantamala/attendance-management/internal/auth/postgres"
	"github.com/frahmantamala/attendance-management/internal/command"
	"github.com/frahmantamala/attendance-management/internal/permission"
	permissionPostgres "github.com/frahmantamala/attendance-management/internal/permission/postgres"
	"github.com/frahmantamala/attendance-management/internal/transport/middleware"
	"github.com/frahmantamala/attendance-management/internal/transport/rest"
	"github.com/frahmantamala/attendance-management/internal/transport/swagger"
	"github.com/frahmantamala/attendance-management/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return startHTTPServer()
	},
}

type Dependencies struct {
	Config      *internal.Config
	DB          *sqlx.DB
	ORM         *gorm.DB
	Router      *chi.Mux
	Registry    *prometheus.Registry
	RateLimiter *middleware.RateLimiter
	Logger      *slog.Logger
}

func startHTTPServer() error {
	deps, err := initializeDependencies()
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.DB.Close(); err != nil {
			deps.Logger.Error("Database close error", "error", err)
		}
	}()

	if err := setupRoutes(deps); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go deps.RateLimiter.Run(ctx)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		deps.Logger.Info("Starting HTTP server", "address", addr, "driver", deps.Config.Database.Driver)
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		deps.Logger.Info("Received signal, shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			deps.Logger.Error("Server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	deps.Logger.Info("Server stopped")
	return nil
}

func setupRoutes(deps *Dependencies) error {
	cfg := deps.Config

	if _, err := swagger.Load(context.Background(), api.OpenAPI); err != nil {
		return err
	}

	dialect, err := command.DialectFor(cfg.Database.Driver)
	if err != nil {
		return err
	}
	invoker := command.NewInvoker(deps.DB, dialect, cfg.Command.Timeout, deps.Logger, command.NewMetrics(deps.Registry))

	issuer := auth.NewJWTTokenIssuer(cfg.Security.JWTSecret, cfg.Security.TokenTTL)
	users := authPostgres.NewRepository(deps.ORM)
	sessions := authPostgres.NewSessionRepository(deps.ORM)

	var checker auth.SessionChecker = sessions
	if cfg.Security.SessionCheck == internal.SessionCheckProcedure {
		checker = auth.NewProcedureSessionChecker(invoker)
	}

	var writer permission.GrantWriter = permission.NewProcedureGrantWriter(invoker)
	if cfg.Permission.ToggleStrategy == internal.ToggleStrategyORM {
		writer = permissionPostgres.NewGrantRepository(deps.ORM)
	}

	builder := audit.NewBuilder(cfg.Security.ClientTag)
	authService := auth.NewService(users, sessions, issuer, cfg.Security.BCryptCost)
	permissionService := permission.NewService(permissionPostgres.NewPermissionRepository(deps.ORM), writer)

	deps.Logger.Info("command pipeline configured",
		"dialect", dialect.Name(),
		"session_check", cfg.Security.SessionCheck,
		"toggle_strategy", cfg.Permission.ToggleStrategy)

	rest.RegisterAllRoutes(deps.Router, rest.Handlers{
		Health:     rest.NewHealthHandler(deps.DB, cfg.Database.Driver),
		Auth:       auth.NewHandler(authService, auth.NewSessionValidator(issuer, checker)),
		Permission: permission.NewHandler(permissionService, builder),
		Attendance: attendance.NewHandler(attendance.NewService(invoker), builder),
		RBAC:       permission.NewRBACAuthorization(permissionService, deps.Logger),
	}, rest.Options{
		Metrics:        middleware.NewHTTPMetrics(deps.Registry),
		MetricsHandler: promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}),
		RateLimiter:    deps.RateLimiter,
		OpenAPI:        api.OpenAPI,
	})
	return nil
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.Init(config.Env, config.Logging.Level)
	lg := logger.LoggerWrapper()

	trusted, err := config.RateLimit.TrustedPrefixes()
	if err != nil {
		return nil, fmt.Errorf("failed to parse trusted proxies: %w", err)
	}

	db, err := initDB(config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	orm, err := initORM(db.DB, config.Database.Driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize orm: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Dependencies{
		Config:      config,
		DB:          db,
		ORM:         orm,
		Router:      chi.NewRouter(),
		Registry:    registry,
		RateLimiter: middleware.NewRateLimiter(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst, trusted...),
		Logger:      lg,
	}, nil
}

// initDB opens the pool the command invoker and health check share.
func initDB(cfg internal.DatabaseConfig) (*sqlx.DB, error) {
	driver := cfg.SQLDriverName()

	dbConn, err := sqlx.Connect(driver, cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return dbConn, nil
}

// initORM layers gorm over the same *sql.DB so repositories and commands
// draw from one pool.
func initORM(db *sql.DB, driver string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case internal.DriverMySQL:
		dialector = gormMySQL.New(gormMySQL.Config{Conn: db})
	default:
		dialector = gormPostgres.New(gormPostgres.Config{Conn: db})
	}

	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
	})
}
