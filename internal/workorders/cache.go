package workorders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey  = "workorders:version"
	cacheLoadTimeout = 10 * time.Second
)

// Cache is a versioned read-through cache for rehydrated orders. Every
// committed mutation bumps the version, which orphans all earlier keys.
// Concurrent misses on the same key share one load.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	return ver, err
}

func (c *Cache) buildKey(ctx context.Context, parts ...string) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("workorders:%s:%d", strings.Join(parts, ":"), ver), nil
}

// Order returns the cached order or loads and stores it.
func (c *Cache) Order(ctx context.Context, id int64, load func(context.Context) (Order, error)) (Order, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	var out Order
	err := c.fetch(ctx, []string{"order", strconv.FormatInt(id, 10)}, &out, func(ctx context.Context) (any, error) {
		return load(ctx)
	})
	return out, err
}

// List returns a cached listing or loads and stores it.
func (c *Cache) List(ctx context.Context, filter ListFilter, load func(context.Context) ([]Order, error)) ([]Order, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	status := "all"
	if filter.Status != nil {
		status = string(*filter.Status)
	}
	var out []Order
	err := c.fetch(ctx, []string{"list", status, strconv.Itoa(filter.Page.Limit), strconv.Itoa(filter.Page.Offset)}, &out,
		func(ctx context.Context) (any, error) {
			return load(ctx)
		})
	return out, err
}

func (c *Cache) fetch(ctx context.Context, parts []string, dest any, load func(context.Context) (any, error)) error {
	key, err := c.buildKey(ctx, parts...)
	if err != nil {
		// Redis trouble degrades to a direct read.
		return decodeInto(ctx, dest, load)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(payload, dest); err == nil {
			return nil
		}
		// Unreadable entry: drop it and reload.
		reflect.ValueOf(dest).Elem().SetZero()
		_ = c.client.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		return decodeInto(ctx, dest, load)
	}

	// The shared load must not inherit one caller's cancellation.
	ch := c.group.DoChan(key, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cacheLoadTimeout)
		defer cancel()
		value, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		_ = c.client.Set(loadCtx, key, raw, c.ttl).Err()
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

func decodeInto(ctx context.Context, dest any, load func(context.Context) (any, error)) error {
	value, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate bumps the cache version.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
