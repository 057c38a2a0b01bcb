// Package userctx carries the authenticated subject through request contexts.
package userctx

import "context"

type contextKey string

const subjectContextKey contextKey = "subject"

func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectContextKey, subject)
}

// Subject returns the token subject, if the request was authenticated.
func Subject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(subjectContextKey).(string)
	return sub, ok && sub != ""
}
