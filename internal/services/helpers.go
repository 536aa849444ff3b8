package services

import (
	"context"
	"strings"
	"time"

	"github.com/yasgmp/gmpauthz/pkg/metrics"
)

// Option customises the services in this package.
type Option func(*serviceOptions)

type serviceOptions struct {
	audit       AuditRecorder
	now         func() time.Time
	mirrorTrail bool
}

// WithClock overrides the clock used for grant timestamps and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTrailMirror additionally writes a human-readable trail event for each
// mutation (GRANT_ROLE, ROLE_CREATE, ...).
func WithTrailMirror(enabled bool) Option {
	return func(o *serviceOptions) {
		o.mirrorTrail = enabled
	}
}

func buildOptions(recorder AuditRecorder, opts []Option) serviceOptions {
	o := serviceOptions{audit: recorder, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o serviceOptions) clock() time.Time {
	return o.now().UTC()
}

func countMutation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.GrantMutations.WithLabelValues(operation, result).Inc()
}

func normaliseTags(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		key := strings.ToLower(value)
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func int64Ptr(v int64) *int64 {
	return &v
}
