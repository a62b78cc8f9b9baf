package adapter

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"recall/internal/pkg/logger"
	"recall/internal/pkg/mq"
	"recall/internal/service/recall/domain"
	"recall/internal/service/recall/domain/port"
)

const stageHeader = "funnel-stage"

// FunnelKafkaAdapter 把漏斗事件写入 kafka，同一 token 的事件落在同一分区。
type FunnelKafkaAdapter struct {
	writer mq.Writer
}

func NewFunnelKafkaAdapter(writer mq.Writer) *FunnelKafkaAdapter {
	return &FunnelKafkaAdapter{writer: writer}
}

func (a *FunnelKafkaAdapter) Publish(ctx context.Context, events ...domain.FunnelEvent) error {
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return errors.Wrap(err, "marshal funnel event")
		}
		key := e.Token
		if key == "" {
			key = strconv.FormatInt(e.MerchantID, 10)
		}
		if err := mq.ProduceMessage(ctx, a.writer, []byte(key), payload,
			kafka.Header{Key: stageHeader, Value: []byte(e.Stage)}); err != nil {
			return errors.Wrapf(err, "publish %s", e.Stage)
		}
	}
	return nil
}

// Close 关闭底层 writer。
func (a *FunnelKafkaAdapter) Close() error {
	if c, ok := a.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// FanoutPublisher 把事件依次交给多个发布者。某个发布者失败不影响后面的发布者，返回第一个错误。
type FanoutPublisher []port.FunnelPublisher

func (f FanoutPublisher) Publish(ctx context.Context, events ...domain.FunnelEvent) error {
	var first error
	for _, p := range f {
		if err := p.Publish(ctx, events...); err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("funnel publisher failed")
			if first == nil {
				first = err
			}
		}
	}
	return first
}

// NoopFunnelPublisher 在没有配置 kafka 时使用。
type NoopFunnelPublisher struct{}

func (NoopFunnelPublisher) Publish(context.Context, ...domain.FunnelEvent) error { return nil }
