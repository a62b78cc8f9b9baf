package adapter

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
)

const (
	viewKeyPrefix         = "recall:views:"
	merchantViewKeyPrefix = "recall:views:merchant:"
)

// ViewCounterRedisAdapter 用 redis 计数落地页浏览次数，token 计数键和 token 同时过期，
// 商家总数不过期。
type ViewCounterRedisAdapter struct {
	client goredis.Cmdable
}

func NewViewCounterRedisAdapter(client goredis.Cmdable) *ViewCounterRedisAdapter {
	return &ViewCounterRedisAdapter{client: client}
}

func viewKey(token string) string { return viewKeyPrefix + token }

func merchantViewKey(merchantID int64) string {
	return merchantViewKeyPrefix + strconv.FormatInt(merchantID, 10)
}

// Incr 返回该 token 累计的浏览次数。
func (a *ViewCounterRedisAdapter) Incr(ctx context.Context, merchantID int64, token string, expireAt time.Time) (int64, error) {
	key := viewKey(token)
	var incr *goredis.IntCmd
	_, err := a.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireAt(ctx, key, expireAt)
		pipe.Incr(ctx, merchantViewKey(merchantID))
		return nil
	})
	if err != nil {
		return 0, errors.Wrapf(err, "incr %s", key)
	}
	return incr.Val(), nil
}

func (a *ViewCounterRedisAdapter) Get(ctx context.Context, token string) (int64, error) {
	return a.get(ctx, viewKey(token))
}

func (a *ViewCounterRedisAdapter) MerchantTotal(ctx context.Context, merchantID int64) (int64, error) {
	return a.get(ctx, merchantViewKey(merchantID))
}

func (a *ViewCounterRedisAdapter) get(ctx context.Context, key string) (int64, error) {
	n, err := a.client.Get(ctx, key).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	return n, errors.Wrapf(err, "get %s", key)
}

// NoopViewCounter 在没有配置 redis 时使用，计数恒为 0。
type NoopViewCounter struct{}

func (NoopViewCounter) Incr(context.Context, int64, string, time.Time) (int64, error) { return 0, nil }
func (NoopViewCounter) Get(context.Context, string) (int64, error)                    { return 0, nil }
func (NoopViewCounter) MerchantTotal(context.Context, int64) (int64, error)           { return 0, nil }
