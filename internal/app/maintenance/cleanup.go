package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/yasgmp/gmpauthz/internal/audit"
	"github.com/yasgmp/gmpauthz/internal/auditctx"
	"github.com/yasgmp/gmpauthz/internal/grants"
	"github.com/yasgmp/gmpauthz/internal/monitoring"
	"github.com/yasgmp/gmpauthz/pkg/logger"
	"github.com/yasgmp/gmpauthz/pkg/metrics"
)

const (
	// JobPurgeExpiredGrants names the purge job in the job tracker.
	JobPurgeExpiredGrants = "purge_expired_grants"

	defaultPurgeSpec = "@hourly"
	defaultTimeout   = 5 * time.Minute
)

// Purger removes expired grant rows.
type Purger interface {
	PurgeExpired(ctx context.Context, now time.Time) (grants.PurgeResult, error)
}

// ChangeRecorder receives the audit event written for each purge that removed rows.
type ChangeRecorder interface {
	LogPermissionChange(ctx context.Context, actor auditctx.Actor, change audit.PermissionChange)
}

// Cleaner runs the expired-grant purge on a cron schedule. Purging is
// housekeeping only: the resolver already ignores expired rows.
type Cleaner struct {
	purger   Purger
	recorder ChangeRecorder
	tracker  *monitoring.JobTracker
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	schedule string
	timeout  time.Duration

	mu      sync.Mutex
	started bool
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used to decide what has expired.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithSchedule overrides the cron specification of the purge job.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithTimeout bounds a single scheduled purge.
func WithTimeout(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.timeout = d
		}
	}
}

// WithTracker records every run for the maintenance health probe.
func WithTracker(tracker *monitoring.JobTracker) Option {
	return func(cleaner *Cleaner) {
		cleaner.tracker = tracker
	}
}

// WithRecorder audits purges that removed rows.
func WithRecorder(recorder ChangeRecorder) Option {
	return func(cleaner *Cleaner) {
		cleaner.recorder = recorder
	}
}

// NewCleaner constructs a Cleaner for purger.
func NewCleaner(purger Purger, opts ...Option) (*Cleaner, error) {
	if purger == nil {
		return nil, errors.New("maintenance: purger is required")
	}

	cleaner := &Cleaner{
		purger:   purger,
		now:      time.Now,
		schedule: defaultPurgeSpec,
		timeout:  defaultTimeout,
		log:      logger.WithModule("maintenance"),
	}
	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner, nil
}

// Start registers the purge job and launches the scheduler.
func (c *Cleaner) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}

	if _, err := c.cron.AddFunc(c.schedule, c.runScheduled); err != nil {
		return fmt.Errorf("maintenance: schedule %q: %w", c.schedule, err)
	}
	c.cron.Start()
	c.started = true
	c.log.Info("maintenance scheduled", zap.String("job", JobPurgeExpiredGrants), zap.String("schedule", c.schedule))
	return nil
}

// Stop halts the scheduler. The returned context is done once running jobs finish.
func (c *Cleaner) Stop() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = false
	return c.cron.Stop()
}

func (c *Cleaner) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if err := c.RunOnce(ctx); err != nil {
		c.log.Warn("expired grant purge failed", zap.Error(err))
	}
}

// RunOnce purges expired grants immediately.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	now := c.now().UTC()
	result, err := c.purger.PurgeExpired(ctx, now)
	c.tracker.Record(JobPurgeExpiredGrants, now, err)
	if err != nil {
		return fmt.Errorf("maintenance: %s: %w", JobPurgeExpiredGrants, err)
	}

	metrics.ExpiredGrantsPurged.WithLabelValues("user_roles").Add(float64(result.UserRoles))
	metrics.ExpiredGrantsPurged.WithLabelValues("user_permissions").Add(float64(result.UserPermissions))
	metrics.ExpiredGrantsPurged.WithLabelValues("delegations").Add(float64(result.Delegations))

	if result.Total() == 0 {
		return nil
	}

	c.log.Info("expired grants purged",
		zap.Int64("user_roles", result.UserRoles),
		zap.Int64("user_permissions", result.UserPermissions),
		zap.Int64("delegations", result.Delegations),
	)
	if c.recorder != nil {
		c.recorder.LogPermissionChange(ctx, auditctx.System, audit.PermissionChange{
			ChangeType: "maintenance",
			Action:     "purge",
			Reason:     "expired",
			Details: fmt.Sprintf("userRoles=%d; userPermissions=%d; delegations=%d",
				result.UserRoles, result.UserPermissions, result.Delegations),
		})
	}
	return nil
}
