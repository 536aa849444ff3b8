package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/yasgmp/gmpauthz/internal/api"
	"github.com/yasgmp/gmpauthz/internal/app"
	"github.com/yasgmp/gmpauthz/internal/app/maintenance"
	"github.com/yasgmp/gmpauthz/internal/audit"
	iauth "github.com/yasgmp/gmpauthz/internal/auth"
	"github.com/yasgmp/gmpauthz/internal/database"
	"github.com/yasgmp/gmpauthz/internal/grants"
	"github.com/yasgmp/gmpauthz/internal/monitoring"
	"github.com/yasgmp/gmpauthz/internal/monitoring/checks"
	"github.com/yasgmp/gmpauthz/internal/permissions"
	"github.com/yasgmp/gmpauthz/internal/services"
	"github.com/yasgmp/gmpauthz/pkg/logger"
)

const databaseProbeTimeout = 3 * time.Second

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB      *gorm.DB
	Sink    *audit.Sink
	Health  *monitoring.HealthManager
	Tracker *monitoring.JobTracker
	Cleaner *maintenance.Cleaner
	Router  *gin.Engine
}

// bootstrapRuntime opens the store, builds the authorization services and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := grants.NewStore(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise grant store: %w", err)
	}

	stack.Sink, err = audit.NewSink(stack.DB, cfg.Audit.SinkOptions()...)
	if err != nil {
		return nil, fmt.Errorf("initialise audit sink: %w", err)
	}

	resolver, err := permissions.NewResolver(store)
	if err != nil {
		return nil, fmt.Errorf("initialise resolver: %w", err)
	}

	serviceOpts := []services.Option{services.WithTrailMirror(cfg.Audit.MirrorTrail)}

	authz, err := services.NewAuthorizationService(store, resolver, stack.Sink, serviceOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise authorization service: %w", err)
	}
	roles, err := services.NewRoleService(store, stack.Sink, serviceOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise role service: %w", err)
	}
	approvals, err := services.NewApprovalService(store, stack.Sink, serviceOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise approval service: %w", err)
	}

	if err := bootstrapAdministrators(ctx, roles, authz, cfg.Auth.BootstrapAdminUserIDs, log); err != nil {
		return nil, err
	}

	stack.Tracker = monitoring.NewJobTracker()
	stack.Health = monitoring.NewHealthManager()
	stack.Health.RegisterReadiness(checks.Database(stack.DB, databaseProbeTimeout))

	if cfg.Maintenance.Enabled {
		stack.Cleaner, err = maintenance.NewCleaner(store,
			maintenance.WithSchedule(cfg.Maintenance.Schedule),
			maintenance.WithTimeout(cfg.Maintenance.Timeout),
			maintenance.WithTracker(stack.Tracker),
			maintenance.WithRecorder(stack.Sink),
		)
		if err != nil {
			return nil, fmt.Errorf("initialise maintenance: %w", err)
		}
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
		stack.Health.RegisterReadiness(checks.Maintenance(stack.Tracker, cfg.Maintenance.MaxAge, nil))
	} else {
		log.Info("expired grant purge disabled")
	}

	verifier, err := iauth.NewVerifier(cfg.Auth.VerifierConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise token verifier: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Deps{
		Verifier:       verifier,
		Authz:          authz,
		Roles:          roles,
		Approvals:      approvals,
		Events:         stack.Sink,
		Health:         stack.Health,
		MetricsEnabled: cfg.Monitoring.Prometheus.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		select {
		case <-s.Cleaner.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance job still running at shutdown")
		}
	}

	if s.DB != nil {
		if err := database.Close(s.DB); err != nil {
			log.Warn("failed to close database", zap.Error(err))
		}
	}
}

func bootstrapAdministrators(ctx context.Context, roles *services.RoleService, authz *services.AuthorizationService, userIDs []int64, log *zap.Logger) error {
	if len(userIDs) == 0 {
		return nil
	}
	result, err := services.EnsureAdministrators(ctx, roles, authz, userIDs)
	if err != nil {
		return fmt.Errorf("bootstrap administrators: %w", err)
	}
	log.Info("administrators ensured",
		zap.Int64("role_id", result.RoleID),
		zap.Bool("role_created", result.RoleCreated),
		zap.Strings("codes_added", result.CodesAdded),
		zap.Int64s("granted", result.Granted),
	)
	return nil
}

func initialiseDatabase(ctx context.Context, cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(ctx, db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	synced, err := permissions.Sync(ctx, db)
	if err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("sync permission catalog: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database ready",
		zap.String("driver", strings.ToLower(dbCfg.Driver)),
		zap.Int("permissions", synced),
	)

	return db, nil
}
