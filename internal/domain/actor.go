package domain

import "context"

// Actor is the authenticated caller. ProfileID is the id of the role profile
// (patient, doctor, employee or admin row), not the user id.
type Actor struct {
	UserID    uint
	Role      Role
	ProfileID uint
}

func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFrom returns the caller stored in ctx, if any.
func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
