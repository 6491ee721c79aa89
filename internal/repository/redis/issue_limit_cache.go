package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"eatflow-gateway/internal/bucketing"
	"eatflow-gateway/internal/hashing"
	"eatflow-gateway/internal/util"
)

const issueLimitPrefix = "issue_limit"

// IssueLimitCache counts code issuances per flow and target in fixed
// windows shared by every gateway instance.
type IssueLimitCache struct {
	client keyValue
	hasher *hashing.Hasher
	bm     *bucketing.BucketingManager
	window time.Duration
	max    int
	now    func() time.Time
}

func NewIssueLimitCache(c keyValue, hasher *hashing.Hasher, bm *bucketing.BucketingManager, window time.Duration, max int) *IssueLimitCache {
	return &IssueLimitCache{
		client: c,
		hasher: hasher,
		bm:     bm,
		window: window,
		max:    max,
		now:    time.Now,
	}
}

// Allow records one issuance and reports whether it fits the window budget
func (c *IssueLimitCache) Allow(ctx context.Context, flow, target string) (bool, error) {
	if c.max <= 0 {
		return true, nil
	}
	windowStart := c.bm.WindowStart(c.now(), c.window)
	key := c.client.Key(issueLimitPrefix, flow, c.hasher.Target(target), strconv.FormatInt(windowStart, 10))

	count, err := c.client.IncrWithExpire(ctx, key, c.window)
	if err != nil {
		return false, fmt.Errorf("failed to increment issue counter: %w", err)
	}
	if count > int64(c.max) {
		util.Warn("Issue limit reached",
			zap.String("flow", flow),
			zap.Int64("count", count),
			zap.Int("max", c.max))
		return false, nil
	}
	return true, nil
}
