package otpgate

import "context"

type requestMetaKey struct{}

// requestMeta is what the transport knows about the caller.
type requestMeta struct {
	ip        string
	userAgent string
}

func metaFrom(ctx context.Context) requestMeta {
	if ctx == nil {
		return requestMeta{}
	}
	m, _ := ctx.Value(requestMetaKey{}).(requestMeta)
	return m
}

// WithClientIP records the caller's address on ctx. Throttling is keyed by it
// and audit events carry it; an empty address disables throttling for the
// request.
func WithClientIP(ctx context.Context, ip string) context.Context {
	m := metaFrom(ctx)
	m.ip = ip
	return context.WithValue(ctx, requestMetaKey{}, m)
}

// WithUserAgent records the caller's User-Agent for audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	m := metaFrom(ctx)
	m.userAgent = userAgent
	return context.WithValue(ctx, requestMetaKey{}, m)
}

func clientIPFromContext(ctx context.Context) string { return metaFrom(ctx).ip }

func userAgentFromContext(ctx context.Context) string { return metaFrom(ctx).userAgent }
