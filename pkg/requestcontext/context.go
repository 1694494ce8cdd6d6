// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Policy, role, and scope lookups are computed once per request and read many
// times while predicates are composed. Instead of hiding that state in
// globals, the evaluation cache travels in the context: middleware (or a job
// runner) attaches a fresh cache, downstream code populates it lazily, and it
// is discarded with the request.
//
// Usage in services (read values):
//
//	user := requestcontext.User(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware / job runners (set values):
//
//	ctx = requestcontext.WithUser(ctx, user)
//	ctx = requestcontext.WithEvalCache(ctx)
package requestcontext

import (
	"context"
	"time"
)

type (
	userKey      struct{}
	siteKey      struct{}
	timeKey      struct{}
	evalCacheKey struct{}
)

// WithUser records the acting user for the request.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// User returns the acting user, or "" when none was set.
func User(ctx context.Context) string {
	u, _ := ctx.Value(userKey{}).(string)
	return u
}

// WithSite records the tenant site identifier for the request.
func WithSite(ctx context.Context, site string) context.Context {
	return context.WithValue(ctx, siteKey{}, site)
}

// Site returns the tenant site identifier, or "" when none was set.
func Site(ctx context.Context) string {
	s, _ := ctx.Value(siteKey{}).(string)
	return s
}

// WithTime pins the request time; tests use this to inject a fixed clock.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, timeKey{}, t)
}

// Now returns the pinned request time, falling back to the wall clock.
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(timeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// EvalCache memoizes request-scoped evaluation state (loaded policy, roles per
// user, allow-list scopes). A request is served by a single goroutine, so the
// cache is deliberately unsynchronized; never share one across requests.
type EvalCache struct {
	entries map[string]any
}

// WithEvalCache attaches a fresh evaluation cache to the context.
func WithEvalCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, evalCacheKey{}, &EvalCache{entries: map[string]any{}})
}

func cacheFrom(ctx context.Context) *EvalCache {
	c, _ := ctx.Value(evalCacheKey{}).(*EvalCache)
	return c
}

// Memo returns the cached value under key, computing and storing it on first
// access. Without a cache in ctx it degrades to calling compute every time,
// which keeps one-shot callers (CLI, tests) working without setup.
func Memo(ctx context.Context, key string, compute func() (any, error)) (any, error) {
	c := cacheFrom(ctx)
	if c == nil {
		return compute()
	}
	if v, ok := c.entries[key]; ok {
		return v, nil
	}
	v, err := compute()
	if err != nil {
		return nil, err
	}
	c.entries[key] = v
	return v, nil
}
