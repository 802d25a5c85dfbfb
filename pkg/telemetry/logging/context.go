package logging

import "context"

type contextKey string

// Context keys for the request-scoped fields the gateway threads
// through its pipeline.
const (
	RequestIDKey  contextKey = "request_id"
	TenantKey     contextKey = "tenant_id"
	ServiceAPIKey contextKey = "service_api_id"
	ProviderKey   contextKey = "provider_type"
	ModelKey      contextKey = "model"
	SessionKey    contextKey = "oauth_session_id"
)

// WithRequestID stamps a request ID onto ctx.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID returns the request ID on ctx, or "".
func RequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// WithTenant stamps a tenant ID onto ctx.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, TenantKey, tenantID)
}

// Tenant returns the tenant ID on ctx, or "".
func Tenant(ctx context.Context) string {
	return stringValue(ctx, TenantKey)
}

// WithServiceAPI stamps a ServiceAPI ID onto ctx.
func WithServiceAPI(ctx context.Context, serviceAPIID string) context.Context {
	return context.WithValue(ctx, ServiceAPIKey, serviceAPIID)
}

// ServiceAPI returns the ServiceAPI ID on ctx, or "".
func ServiceAPI(ctx context.Context) string {
	return stringValue(ctx, ServiceAPIKey)
}

// WithProvider stamps a provider-type name onto ctx.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ProviderKey, provider)
}

// Provider returns the provider-type name on ctx, or "".
func Provider(ctx context.Context) string {
	return stringValue(ctx, ProviderKey)
}

// WithModel stamps the requested model onto ctx.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ModelKey, model)
}

// Model returns the requested model on ctx, or "".
func Model(ctx context.Context) string {
	return stringValue(ctx, ModelKey)
}

// WithSession stamps an OAuth session ID onto ctx.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionKey, sessionID)
}

// Session returns the OAuth session ID on ctx, or "".
func Session(ctx context.Context) string {
	return stringValue(ctx, SessionKey)
}

func stringValue(ctx context.Context, key contextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// contextFields collects every stamped field as alternating key/value
// pairs for Logger.With.
func contextFields(ctx context.Context) []any {
	var fields []any
	for _, key := range []contextKey{
		RequestIDKey, TenantKey, ServiceAPIKey, ProviderKey, ModelKey, SessionKey,
	} {
		if v := stringValue(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}
