package types

import "context"

type (
	requestIDKey     struct{}
	correlationIDKey struct{}
	tenantIDKey      struct{}
	userIDKey        struct{}
	rolesKey         struct{}
)

// WithRequestID attaches the per-request identifier generated by the
// RequestID middleware.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored by WithRequestID, if any.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey{}).(string)
	return v, ok
}

// WithCorrelationID attaches the correlation id propagated into the error
// envelope and logs for a request.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

// CorrelationIDFromContext returns the correlation id stored by
// WithCorrelationID, if any.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(correlationIDKey{}).(string)
	return v, ok
}

// WithTenantID attaches the authenticated tenant id extracted from a JWT's
// claims.
func WithTenantID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tenantIDKey{}, id)
}

// TenantIDFromContext returns the tenant id stored by WithTenantID, if any.
func TenantIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tenantIDKey{}).(string)
	return v, ok
}

// WithUserID attaches the authenticated user id extracted from a JWT's
// claims.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserIDFromContext returns the user id stored by WithUserID, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey{}).(string)
	return v, ok
}

// WithRoles attaches the authenticated caller's roles extracted from a
// JWT's claims.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey{}, roles)
}

// RolesFromContext returns the roles stored by WithRoles, if any.
func RolesFromContext(ctx context.Context) ([]string, bool) {
	v, ok := ctx.Value(rolesKey{}).([]string)
	return v, ok
}
