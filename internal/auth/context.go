package auth

import (
	"context"

	"github.com/fdg312/meal-calendar/internal/userctx"
)

func WithSubject(ctx context.Context, subject string) context.Context {
	return userctx.WithSubject(ctx, subject)
}

func GetSubject(ctx context.Context) (string, bool) {
	return userctx.Subject(ctx)
}
