package permissions

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/yasgmp/gmpauthz/internal/grants"
	"github.com/yasgmp/gmpauthz/internal/models"
	apperrors "github.com/yasgmp/gmpauthz/pkg/errors"
	"github.com/yasgmp/gmpauthz/pkg/logger"
	"github.com/yasgmp/gmpauthz/pkg/metrics"
)

// GrantSource is the read side of the grant store consumed by Resolver.
type GrantSource interface {
	UserPermissionGrants(ctx context.Context, userID int64, code string) ([]grants.DirectGrant, error)
	UserRoles(ctx context.Context, userID int64) ([]models.UserRole, error)
	RolePermissionGrants(ctx context.Context, roleIDs []int64, code string) ([]grants.RoleGrant, error)
	DelegationsTo(ctx context.Context, userID int64, code string) ([]grants.Delegation, error)
}

// Resolver evaluates effective permissions from direct grants, role
// memberships and delegations. It holds no state besides its clock and
// re-reads the store on every call.
type Resolver struct {
	source GrantSource
	now    func() time.Time
}

// ResolverOption customises a Resolver.
type ResolverOption func(*Resolver)

// WithClock overrides the clock used for expiry evaluation.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// NewResolver constructs a Resolver backed by source.
func NewResolver(source GrantSource, opts ...ResolverOption) (*Resolver, error) {
	if source == nil {
		return nil, errors.New("permission resolver: grant source is required")
	}
	r := &Resolver{source: source, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// HasPermission reports whether principalID currently holds code. Sources are
// consulted in order (direct, role, delegation) and the first allow wins.
// Store failures are returned as errors, never as a denial.
func (r *Resolver) HasPermission(ctx context.Context, principalID int64, code string) (bool, error) {
	ctx = ensureContext(ctx)
	code = models.NormalizeCode(code)
	if code == "" {
		metrics.PermissionChecks.WithLabelValues("denied").Inc()
		return false, nil
	}
	now := r.now()

	allowed, err := r.check(ctx, principalID, code, now)
	switch {
	case err != nil:
		metrics.PermissionChecks.WithLabelValues("error").Inc()
		logger.WithModule("permissions").Warn("permission check failed",
			zap.Int64("user_id", principalID),
			zap.String("permission", code),
			zap.Error(err),
		)
		return false, unavailable(err)
	case allowed:
		metrics.PermissionChecks.WithLabelValues("allowed").Inc()
	default:
		metrics.PermissionChecks.WithLabelValues("denied").Inc()
	}
	return allowed, nil
}

func (r *Resolver) check(ctx context.Context, principalID int64, code string, now time.Time) (bool, error) {
	direct, err := r.source.UserPermissionGrants(ctx, principalID, code)
	if err != nil {
		return false, err
	}
	for _, g := range direct {
		if g.Allowed && !expired(g.ExpiresAt, now) {
			return true, nil
		}
	}

	roleIDs, err := r.activeRoleIDs(ctx, principalID, now)
	if err != nil {
		return false, err
	}
	if len(roleIDs) > 0 {
		roleGrants, err := r.source.RolePermissionGrants(ctx, roleIDs, code)
		if err != nil {
			return false, err
		}
		for _, g := range roleGrants {
			if g.Allowed {
				return true, nil
			}
		}
	}

	delegations, err := r.source.DelegationsTo(ctx, principalID, code)
	if err != nil {
		return false, err
	}
	for _, d := range delegations {
		if d.Active(now) {
			return true, nil
		}
	}
	return false, nil
}

// AssertPermission returns an AuthorizationDenied error unless principalID holds code.
func (r *Resolver) AssertPermission(ctx context.Context, principalID int64, code string) error {
	ok, err := r.HasPermission(ctx, principalID, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.Denied(principalID, models.NormalizeCode(code))
	}
	return nil
}

// EffectivePermissions returns the sorted, de-duplicated union of every code
// principalID currently holds.
func (r *Resolver) EffectivePermissions(ctx context.Context, principalID int64) ([]string, error) {
	ctx = ensureContext(ctx)
	now := r.now()
	set := make(map[string]struct{})

	direct, err := r.source.UserPermissionGrants(ctx, principalID, "")
	if err != nil {
		return nil, unavailable(err)
	}
	for _, g := range direct {
		if g.Allowed && !expired(g.ExpiresAt, now) {
			set[models.NormalizeCode(g.Code)] = struct{}{}
		}
	}

	roleIDs, err := r.activeRoleIDs(ctx, principalID, now)
	if err != nil {
		return nil, unavailable(err)
	}
	roleGrants, err := r.source.RolePermissionGrants(ctx, roleIDs, "")
	if err != nil {
		return nil, unavailable(err)
	}
	for _, g := range roleGrants {
		if g.Allowed {
			set[models.NormalizeCode(g.Code)] = struct{}{}
		}
	}

	delegations, err := r.source.DelegationsTo(ctx, principalID, "")
	if err != nil {
		return nil, unavailable(err)
	}
	for _, d := range delegations {
		if d.Active(now) {
			set[models.NormalizeCode(d.Code)] = struct{}{}
		}
	}

	codes := make([]string, 0, len(set))
	for code := range set {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes, nil
}

func (r *Resolver) activeRoleIDs(ctx context.Context, principalID int64, now time.Time) ([]int64, error) {
	memberships, err := r.source.UserRoles(ctx, principalID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(memberships))
	for _, m := range memberships {
		if !expired(m.ExpiresAt, now) {
			ids = append(ids, m.RoleID)
		}
	}
	return ids, nil
}

// expired treats a grant expiring exactly at now as no longer valid.
func expired(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && !expiresAt.After(now)
}

func unavailable(err error) error {
	if errors.Is(err, apperrors.ErrStoreUnavailable) {
		return err
	}
	return apperrors.StoreFailure("permission resolver", err)
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
