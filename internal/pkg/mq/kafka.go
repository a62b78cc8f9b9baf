// Package mq 封装 kafka-go 的生产者，并在消息头里传播追踪上下文。
package mq

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

type Config struct {
	Brokers     []string `yaml:"brokers"`
	FunnelTopic string   `yaml:"funnel_topic"`
}

// Writer 是 *kafka.Writer 的发送接口。
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaWriter 创建按 key 哈希分区的同步 writer。
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// ProduceMessage 发送一条消息，当前 span 的上下文写入消息头。
func ProduceMessage(ctx context.Context, w Writer, key, value []byte, headers ...kafka.Header) error {
	carrier := KafkaHeaderCarrier(headers)
	otel.GetTextMapPropagator().Inject(ctx, &carrier)

	err := w.WriteMessages(ctx, kafka.Message{
		Key:     key,
		Value:   value,
		Headers: carrier,
		Time:    time.Now(),
	})
	return errors.Wrap(err, "write kafka message")
}

// KafkaHeaderCarrier 让 kafka 消息头满足 propagation.TextMapCarrier。
type KafkaHeaderCarrier []kafka.Header

func (c *KafkaHeaderCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *KafkaHeaderCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *KafkaHeaderCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = h.Key
	}
	return keys
}
