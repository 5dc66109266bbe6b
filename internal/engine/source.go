package engine

import "context"

type sourceKey struct{}

// WithSource tags ctx with the ingress an event arrived through (api, nats).
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFromContext returns the ingress tag, or "direct".
func SourceFromContext(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok && s != "" {
		return s
	}
	return "direct"
}
