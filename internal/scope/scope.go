// Package scope resolves a user's visibility scope: which companies and
// brands they are allowed to see (from User Permission allow-list rows) and
// which roles they hold. Lookups are memoized per request; an optional Redis
// layer carries them across requests and is invalidated after apply runs.
package scope

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"onboard/internal/docstore"
	platformredis "onboard/internal/platform/redis"
	"onboard/pkg/requestcontext"
)

// Scope is a user's allowed company and brand sets. Empty sets mean the user
// has no allow-list rows for that doctype, which the composer treats as
// "no constraint from this dimension".
type Scope struct {
	Companies map[string]struct{}
	Brands    map[string]struct{}
}

// Resolver answers scope and role questions against the document store.
type Resolver struct {
	store  docstore.Store
	redis  *platformredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRedis adds a cross-request cache with the given TTL.
func WithRedis(client *platformredis.Client, ttl time.Duration) Option {
	return func(r *Resolver) {
		r.redis = client
		r.ttl = ttl
	}
}

func NewResolver(store docstore.Store, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{store: store, logger: logger, ttl: 5 * time.Minute}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// UserScope returns the user's company and brand allow-lists.
func (r *Resolver) UserScope(ctx context.Context, user string) (Scope, error) {
	companies, err := r.Allowed(ctx, user, docstore.DoctypeCompany)
	if err != nil {
		return Scope{}, err
	}
	brands, err := r.Allowed(ctx, user, docstore.DoctypeBrand)
	if err != nil {
		return Scope{}, err
	}
	return Scope{Companies: companies, Brands: brands}, nil
}

// Allowed returns the allow-list values granted to the user for the doctype.
func (r *Resolver) Allowed(ctx context.Context, user, doctype string) (map[string]struct{}, error) {
	key := fmt.Sprintf("up\x00%s\x00%s", user, doctype)
	v, err := requestcontext.Memo(ctx, key, func() (any, error) {
		return r.loadAllowed(ctx, user, doctype)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]struct{}), nil
}

// Roles returns the user's role set: direct role rows on the User document.
func (r *Resolver) Roles(ctx context.Context, user string) (map[string]struct{}, error) {
	key := "roles\x00" + user
	v, err := requestcontext.Memo(ctx, key, func() (any, error) {
		return r.loadRoles(ctx, user)
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]struct{}), nil
}

// Invalidate drops every cached scope entry in Redis. Called after apply runs
// because provisioning rewrites allow-list rows.
func (r *Resolver) Invalidate(ctx context.Context) {
	if r.redis == nil {
		return
	}
	iter := r.redis.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.redis.Del(ctx, iter.Val()).Err(); err != nil {
			r.warn("scope cache invalidation failed", err)
			return
		}
	}
	if err := iter.Err(); err != nil {
		r.warn("scope cache scan failed", err)
	}
}

const redisKeyPrefix = "onboard:scope:"

func (r *Resolver) loadAllowed(ctx context.Context, user, doctype string) (map[string]struct{}, error) {
	redisKey := fmt.Sprintf("%s%s:%s", redisKeyPrefix, user, doctype)
	if vals, ok := r.fromRedis(ctx, redisKey); ok {
		return vals, nil
	}

	docs, err := r.store.List(ctx, docstore.DoctypeUserPerm, docstore.Filters{
		"user":  user,
		"allow": doctype,
	})
	if err != nil {
		return nil, fmt.Errorf("load allow-list %s/%s: %w", user, doctype, err)
	}
	vals := map[string]struct{}{}
	for _, d := range docs {
		if v := d.GetString("for_value"); v != "" {
			vals[v] = struct{}{}
		}
	}

	r.toRedis(ctx, redisKey, vals)
	return vals, nil
}

func (r *Resolver) loadRoles(ctx context.Context, user string) (map[string]struct{}, error) {
	roles := map[string]struct{}{}
	doc, err := r.store.Get(ctx, "User", user)
	if err != nil {
		// Unknown users simply hold no roles; the composer then denies or
		// scopes them like any unprivileged user.
		return roles, nil
	}
	for _, row := range doc.Rows("roles") {
		if role, _ := row["role"].(string); role != "" {
			roles[role] = struct{}{}
		}
	}
	return roles, nil
}

func (r *Resolver) fromRedis(ctx context.Context, key string) (map[string]struct{}, bool) {
	if r.redis == nil {
		return nil, false
	}
	raw, err := r.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var vals []string
	if err := json.Unmarshal(raw, &vals); err != nil {
		return nil, false
	}
	out := make(map[string]struct{}, len(vals))
	for _, v := range vals {
		out[v] = struct{}{}
	}
	return out, true
}

func (r *Resolver) toRedis(ctx context.Context, key string, vals map[string]struct{}) {
	if r.redis == nil {
		return
	}
	list := make([]string, 0, len(vals))
	for v := range vals {
		list = append(list, v)
	}
	sort.Strings(list)
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := r.redis.Set(ctx, key, raw, r.ttl).Err(); err != nil {
		r.warn("scope cache write failed", err)
	}
}

func (r *Resolver) warn(msg string, err error) {
	if r.logger != nil {
		r.logger.Warn(msg, "error", err)
	}
}
