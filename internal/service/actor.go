package service

import (
	"context"

	"github.com/onoacademic/campusid/internal/domain"
)

// Actor is the user on whose behalf a write is made
type Actor struct {
	UserID string
	Role   domain.Role
}

type actorKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

func ActorFromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}
