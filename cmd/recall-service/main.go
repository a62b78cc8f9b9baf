// cmd/recall-service/main.go
package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"recall/internal/pkg/bootstrap"
	"recall/internal/pkg/httpclient"
	"recall/internal/pkg/mq"
	"recall/internal/pkg/redis"
	"recall/internal/service/recall/application"
	"recall/internal/service/recall/domain/port"
	"recall/internal/service/recall/infrastructure"
	"recall/internal/service/recall/infrastructure/adapter"
	"recall/internal/service/recall/infrastructure/importer"
	"recall/internal/service/recall/infrastructure/rule"
	"recall/internal/service/recall/interfaces"
)

const serviceName = "recall-service"

// main 是应用的组装根: 创建并组装所有依赖项，然后启动服务。
func main() {
	err := bootstrap.StartService(bootstrap.AppInfo{
		ServiceName:      serviceName,
		RegisterHandlers: registerHandlers,
	})
	if err != nil {
		log.Error().Err(err).Msg("recall service exited")
		os.Exit(1)
	}
}

func registerHandlers(app bootstrap.AppCtx) error {
	cfg := app.Config
	tracer := otel.Tracer(serviceName)

	// 1. 仓储
	merchantRepo := infrastructure.NewMerchantDAO(app.Pool)
	orderRepo := infrastructure.NewOrderDAO(app.Pool)
	recallRepo := infrastructure.NewRecallDAO(app.Pool)

	// 2. 外部依赖
	sms := adapter.NewYunpianSMSAdapter(httpclient.NewClient(tracer, cfg.SMS.Timeout), adapter.YunpianConfig{
		BaseURL:    cfg.SMS.BaseURL,
		APIKey:     cfg.SMS.APIKey,
		TplID:      cfg.SMS.TplID,
		TplContent: cfg.SMS.TplContent,
	})

	hub := interfaces.NewFunnelHub(
		interfaces.WithAllowedOrigins(cfg.App.FunnelOrigins...),
		interfaces.WithSubscribeKey(cfg.App.FunnelKey),
	)
	go hub.Run()
	app.OnShutdown("funnel-hub", hub.Close)

	publishers := adapter.FanoutPublisher{hub}
	if len(cfg.Infra.Kafka.Brokers) > 0 {
		writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.FunnelTopic)
		app.OnShutdown("kafka-writer", func(context.Context) error { return writer.Close() })
		publishers = append(publishers, adapter.NewFunnelKafkaAdapter(writer))
	} else {
		log.Warn().Msg("kafka brokers not configured, funnel events stay in-process")
	}

	var views port.ViewCounter = adapter.NoopViewCounter{}
	redisClient, err := redis.NewClient(app.Ctx, cfg.Infra.Redis)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("redis unavailable, landing views are not counted")
	case redisClient != nil:
		app.OnShutdown("redis", func(context.Context) error { return redisClient.Close() })
		views = adapter.NewViewCounterRedisAdapter(redisClient)
	}

	rules, err := rule.NewCELRuleEngine()
	if err != nil {
		return err
	}

	// 3. 业务服务
	merchantSvc := application.NewMerchantService(merchantRepo, tracer)
	orderSvc := application.NewOrderService(orderRepo, importer.NewXLSXOrderReader(time.Local), tracer)
	recallSvc := application.NewRecallService(recallRepo, sms, tracer,
		application.WithPublicBaseURL(cfg.App.PublicBaseURL),
		application.WithTokenTTL(cfg.App.RecallTTL),
		application.WithCleanupRetention(cfg.App.CleanupRetention),
		application.WithFunnelPublisher(publishers),
		application.WithViewCounter(views),
	)
	targetingSvc := application.NewTargetingService(orderRepo, merchantRepo, rules, tracer)

	// 4. 路由
	interfaces.NewRecallHandler(merchantSvc, orderSvc, recallSvc, targetingSvc, hub).RegisterRoutes(app.Mux)
	return nil
}
