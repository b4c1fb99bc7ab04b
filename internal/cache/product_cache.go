package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/topup/internal/config"
	productdomain "github.com/smallbiznis/topup/internal/product/domain"
	"go.uber.org/zap"
)

const (
	defaultProductTTL = 5 * time.Minute
	keyProduct        = "topup:product:%s"
)

// ProductCache holds catalog lookups for order creation. Cached products are
// only used for pricing a new order and never for an existing order's snapshot.
type ProductCache interface {
	Get(ctx context.Context, ref string) (*productdomain.Product, bool)
	Set(ctx context.Context, ref string, product *productdomain.Product)
	Invalidate(ctx context.Context, refs ...string)
}

// NewProductCache picks the redis store when a client is available.
func NewProductCache(cfg config.Config, client *redis.Client, log *zap.Logger) ProductCache {
	ttl := cfg.Catalog.CacheTTL
	if ttl <= 0 {
		ttl = defaultProductTTL
	}
	if client != nil {
		return &redisProductCache{client: client, ttl: ttl, log: log.Named("cache.product")}
	}
	return &memoryProductCache{items: NewTTLCache[string, productdomain.Product](), ttl: ttl}
}

type memoryProductCache struct {
	items Cache[string, productdomain.Product]
	ttl   time.Duration
}

func (c *memoryProductCache) Get(_ context.Context, ref string) (*productdomain.Product, bool) {
	p, ok := c.items.Get(cacheKey(ref))
	if !ok {
		return nil, false
	}
	return &p, true
}

func (c *memoryProductCache) Set(_ context.Context, ref string, product *productdomain.Product) {
	if product == nil || product.ID == 0 {
		return
	}
	c.items.Set(cacheKey(ref), *product, c.ttl)
}

func (c *memoryProductCache) Invalidate(_ context.Context, refs ...string) {
	for _, ref := range refs {
		c.items.Delete(cacheKey(ref))
	}
}

type redisProductCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.Logger
}

func (c *redisProductCache) Get(ctx context.Context, ref string) (*productdomain.Product, bool) {
	raw, err := c.client.Get(ctx, fmt.Sprintf(keyProduct, cacheKey(ref))).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("product cache read failed", zap.String("ref", ref), zap.Error(err))
		}
		return nil, false
	}
	var p productdomain.Product
	if err := json.Unmarshal(raw, &p); err != nil {
		c.log.Warn("product cache entry corrupt", zap.String("ref", ref), zap.Error(err))
		return nil, false
	}
	return &p, true
}

func (c *redisProductCache) Set(ctx context.Context, ref string, product *productdomain.Product) {
	if product == nil || product.ID == 0 {
		return
	}
	raw, err := json.Marshal(product)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, fmt.Sprintf(keyProduct, cacheKey(ref)), raw, c.ttl).Err(); err != nil {
		c.log.Warn("product cache write failed", zap.String("ref", ref), zap.Error(err))
	}
}

func (c *redisProductCache) Invalidate(ctx context.Context, refs ...string) {
	if len(refs) == 0 {
		return
	}
	keys := make([]string, 0, len(refs))
	for _, ref := range refs {
		keys = append(keys, fmt.Sprintf(keyProduct, cacheKey(ref)))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("product cache invalidate failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
