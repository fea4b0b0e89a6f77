// Package tenant carries the request-scoped organization identifier.
//
// The organization an operation acts on behalf of is bound to the
// context.Context of that operation, never to process-global state, so
// concurrent runs for different organizations cannot observe each other's
// identifier.
package tenant

import "context"

type contextKey struct{}

// WithOrganization returns a child context carrying the organization identifier.
func WithOrganization(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, contextKey{}, organizationID)
}

// OrganizationID returns the organization identifier bound to the context,
// and whether one was set.
func OrganizationID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
