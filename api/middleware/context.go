package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/vouchr/storefront-backend/pkg/outbox"
)

type contextKey string

const (
	ctxOperatorID contextKey = "operator_id"
	ctxRole       contextKey = "actor_role"
)

func OperatorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxOperatorID).(string); ok {
		return v
	}
	return ""
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// WithOperator injects the authenticated operator into the context.
func WithOperator(ctx context.Context, operatorID, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxOperatorID, operatorID)
	return context.WithValue(ctx, ctxRole, role)
}

// ActorFromContext builds the outbox actor for operator-triggered writes.
func ActorFromContext(ctx context.Context) *outbox.ActorRef {
	actor := &outbox.ActorRef{Role: RoleFromContext(ctx), Source: "operator_api"}
	if id, err := uuid.Parse(OperatorIDFromContext(ctx)); err == nil {
		actor.OperatorID = &id
	}
	return actor
}
