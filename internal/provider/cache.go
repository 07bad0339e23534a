package provider

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSearchTTL = 10 * time.Minute
	DefaultRecordTTL = 24 * time.Hour
)

// TTLClass selects the expiry applied to a cached response.
type TTLClass int

const (
	TTLSearch TTLClass = iota
	TTLRecord
)

// Request describes a read-through call. Signature is normalized before it
// becomes part of the cache key.
type Request struct {
	Op        string
	Signature string
	Locale    string
	Class     TTLClass
}

// Cache is a read-through response cache shared by the concurrent callers of
// one client. Concurrent misses for the same key share a single load. Cached
// values are handed out as-is and must be treated as read-only.
type Cache struct {
	capability Capability
	store      *cache.Cache
	group      singleflight.Group
	searchTTL  time.Duration
	recordTTL  time.Duration
}

// NewCache creates a cache for one client. Non-positive TTLs use the defaults.
func NewCache(capability Capability, searchTTL, recordTTL time.Duration) *Cache {
	if searchTTL <= 0 {
		searchTTL = DefaultSearchTTL
	}
	if recordTTL <= 0 {
		recordTTL = DefaultRecordTTL
	}
	return &Cache{
		capability: capability,
		store:      cache.New(recordTTL, 2*recordTTL),
		searchTTL:  searchTTL,
		recordTTL:  recordTTL,
	}
}

// Key builds the cache key for req.
func (c *Cache) Key(req Request) string {
	return strings.Join([]string{
		string(c.capability),
		req.Op,
		NormalizeSignature(req.Signature),
		strings.ToLower(req.Locale),
	}, "|")
}

func (c *Cache) ttl(class TTLClass) time.Duration {
	if class == TTLSearch {
		return c.searchTTL
	}
	return c.recordTTL
}

// Len returns the number of unexpired entries.
func (c *Cache) Len() int {
	return c.store.ItemCount()
}

// Fetch returns the cached value for req or runs load once for all
// concurrent callers and stores a successful result. Failures are not cached.
// A caller that joined a load which was cancelled by its owner retries with
// its own context.
func Fetch[T any](ctx context.Context, c *Cache, req Request, load func(context.Context) (T, error)) (T, error) {
	if c == nil {
		return load(ctx)
	}

	key := c.Key(req)
	for {
		if v, ok := c.store.Get(key); ok {
			return v.(T), nil
		}

		ch := c.group.DoChan(key, func() (interface{}, error) {
			if v, ok := c.store.Get(key); ok {
				return v, nil
			}
			v, err := load(ctx)
			if err != nil {
				return nil, err
			}
			c.store.Set(key, v, c.ttl(req.Class))
			return v, nil
		})

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				if res.Shared && isContextErr(res.Err) && ctx.Err() == nil {
					continue
				}
				var zero T
				return zero, res.Err
			}
			return res.Val.(T), nil
		}
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// NormalizeSignature lowercases s and collapses runs of whitespace.
func NormalizeSignature(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
