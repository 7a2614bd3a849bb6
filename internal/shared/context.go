package shared

import (
	"context"
	"strings"
)

type actorContextKey struct{}

// ContextWithActor stores the acting username in context.
func ContextWithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, strings.TrimSpace(actor))
}

// ActorFromContext extracts the acting username from context. The second value
// is false when no non-empty actor was stored.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, _ := ctx.Value(actorContextKey{}).(string)
	return actor, actor != ""
}
