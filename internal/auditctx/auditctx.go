package auditctx

import "context"

// Actor identifies the principal performing an operation together with the
// request metadata recorded on every audit event.
type Actor struct {
	UserID     int64
	IPAddress  string
	DeviceInfo string
	SessionID  string
}

// System is the actor used by background jobs.
var System = Actor{UserID: 0, DeviceInfo: "gmpauthz/maintenance", SessionID: "system"}

// IsSystem reports whether the actor is not a real principal.
func (a Actor) IsSystem() bool {
	return a.UserID <= 0
}

// UserRef returns the actor id for nullable audit columns.
func (a Actor) UserRef() *int64 {
	if a.IsSystem() {
		return nil
	}
	id := a.UserID
	return &id
}

type actorContextKey struct{}

// WithActor stores the actor on ctx. Services never read it implicitly; HTTP
// handlers use FromContext to hand the actor to them explicitly.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// FromContext extracts previously stored actor metadata from the context.
func FromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
