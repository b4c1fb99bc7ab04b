package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/topup/internal/cache"
	"github.com/smallbiznis/topup/internal/config"
	"github.com/smallbiznis/topup/internal/observability/metrics"
	"go.uber.org/fx"
	"golang.org/x/time/rate"
)

const (
	EndpointCreateOrder = "create_order"
	EndpointVerify      = "verify"

	keyEndpoint   = "topup:ratelimit:%s:%s"
	localIdleTTL  = 10 * time.Minute
	perMinuteUnit = float64(time.Minute / time.Second)
)

var ErrRateLimited = errors.New("rate_limited")

type Policy struct {
	// Rate is tokens per second.
	Rate  float64
	Burst int
}

// Limiter throttles public endpoints per client key. It uses the shared redis
// bucket when a client is configured and a process-local bucket otherwise.
type Limiter struct {
	enabled  bool
	policies map[string]Policy
	bucket   *TokenBucket
	metrics  *metrics.Metrics

	mu    sync.Mutex
	local cache.Cache[string, *rate.Limiter]
	now   func() time.Time
}

type Params struct {
	fx.In

	Config  config.Config
	Redis   *redis.Client    `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

func New(p Params) *Limiter {
	l := NewLimiter(p.Config, p.Redis)
	l.metrics = p.Metrics
	return l
}

func NewLimiter(cfg config.Config, client *redis.Client) *Limiter {
	limitCfg := cfg.RateLimit
	return &Limiter{
		enabled: limitCfg.Enabled,
		policies: map[string]Policy{
			EndpointCreateOrder: {Rate: float64(limitCfg.CreateOrderPerMinute) / perMinuteUnit, Burst: limitCfg.CreateOrderBurst},
			EndpointVerify:      {Rate: float64(limitCfg.VerifyPerMinute) / perMinuteUnit, Burst: limitCfg.VerifyBurst},
		},
		bucket: NewTokenBucket(client),
		local:  cache.NewTTLCache[string, *rate.Limiter](),
		now:    time.Now,
	}
}

func (l *Limiter) Enabled() bool {
	return l != nil && l.enabled
}

// Allow takes one token for key on endpoint. Unknown endpoints are not limited.
func (l *Limiter) Allow(ctx context.Context, endpoint, key string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	policy, ok := l.policies[endpoint]
	if !ok || policy.Rate <= 0 || policy.Burst <= 0 {
		return &RateLimitResult{Allowed: true}, nil
	}

	bucketKey := fmt.Sprintf(keyEndpoint, endpoint, strings.TrimSpace(key))
	var (
		res *RateLimitResult
		err error
	)
	if l.bucket != nil {
		res, err = l.bucket.Allow(ctx, bucketKey, policy.Rate, policy.Burst)
		if err != nil {
			l.metrics.RecordRateLimitDenied(ctx, endpoint, "backend_error")
			return res, err
		}
	} else {
		res = l.allowLocal(bucketKey, policy)
	}

	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, endpoint)
	} else {
		l.metrics.RecordRateLimitDenied(ctx, endpoint, "exhausted")
	}
	return res, nil
}

func (l *Limiter) allowLocal(key string, policy Policy) *RateLimitResult {
	l.mu.Lock()
	limiter, ok := l.local.Get(key)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(policy.Rate), policy.Burst)
	}
	l.local.Set(key, limiter, localIdleTTL)
	l.mu.Unlock()

	now := l.now()
	reservation := limiter.ReserveN(now, 1)
	if !reservation.OK() {
		return &RateLimitResult{Allowed: false, Limit: policy.Burst}
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.CancelAt(now)
		return &RateLimitResult{
			Allowed:    false,
			Limit:      policy.Burst,
			RetryAfter: delay,
			ResetTime:  now.Add(delay),
		}
	}
	return &RateLimitResult{
		Allowed:   true,
		Limit:     policy.Burst,
		Remaining: int(limiter.TokensAt(now)),
		ResetTime: now,
	}
}
