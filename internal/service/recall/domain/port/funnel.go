package port

import (
	"context"
	"time"

	"recall/internal/service/recall/domain"
)

// FunnelPublisher 发布漏斗事件。发布失败不影响主流程，由调用方记录日志。
type FunnelPublisher interface {
	Publish(ctx context.Context, events ...domain.FunnelEvent) error
}

// ViewCounter 统计落地页浏览次数，按 token 计数的同时累计商家总数。
type ViewCounter interface {
	Incr(ctx context.Context, merchantID int64, token string, expireAt time.Time) (int64, error)
	Get(ctx context.Context, token string) (int64, error)
	MerchantTotal(ctx context.Context, merchantID int64) (int64, error)
}
