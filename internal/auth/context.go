// ABOUTME: Request context helpers for the authenticated token subject
// ABOUTME: Provides WithSubject/SubjectFromContext for handlers behind the middleware

package auth

import (
	"context"
)

// subjectKey is the key type for storing the token subject in context.Context.
type subjectKey struct{}

// WithSubject returns a new context carrying the authenticated subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey{}, subject)
}

// SubjectFromContext returns the authenticated subject, or "" when the request
// was not authenticated.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey{}).(string)
	return subject
}
