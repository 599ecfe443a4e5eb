// Package context carries request correlation values used by logs and spans.
package context

import (
	"context"
	"strings"
)

// Gin context keys for the resource a request targets. Request logs and
// spans pick them up after the handler ran.
const (
	ResourceOrder       = "order_id"
	ResourceCollective  = "collective_id"
	ResourceTransaction = "transaction_id"
)

var ResourceKeys = []string{ResourceOrder, ResourceCollective, ResourceTransaction}

type requestIDKey struct{}
type collectiveIDKey struct{}
type actorKey struct{}

type actor struct {
	kind string
	id   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithCollectiveID records the collective a request acts on.
func WithCollectiveID(ctx context.Context, collectiveID string) context.Context {
	return context.WithValue(ctx, collectiveIDKey{}, strings.TrimSpace(collectiveID))
}

func CollectiveIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(collectiveIDKey{}).(string)
	return value
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{kind: strings.TrimSpace(actorType), id: strings.TrimSpace(actorID)})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return value.kind, value.id
}
