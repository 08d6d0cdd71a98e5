package sentinel

import "context"

type clientIPContextKey struct{}
type userAgentContextKey struct{}
type deviceHashContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine uses it
// for per-IP rate limiting, audit logging, and the anomaly heuristic.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithUserAgent attaches the HTTP User-Agent string to ctx. Used for
// session fingerprints and the anomaly heuristic.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	return context.WithValue(ctx, userAgentContextKey{}, userAgent)
}

// WithDeviceHash attaches an optional client-supplied device hash to ctx.
// It is folded into the session fingerprint when present.
func WithDeviceHash(ctx context.Context, hash string) context.Context {
	return context.WithValue(ctx, deviceHashContextKey{}, hash)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func userAgentFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	userAgent, _ := ctx.Value(userAgentContextKey{}).(string)
	return userAgent
}

func deviceHashFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	hash, _ := ctx.Value(deviceHashContextKey{}).(string)
	return hash
}
