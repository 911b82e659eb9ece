package tenant

import "context"

type ctxKey struct{}

// HeaderName carries the tenant id on admin API requests.
const HeaderName = "X-Tenant-ID"

func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}
