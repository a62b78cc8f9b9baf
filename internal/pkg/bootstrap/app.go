// Package bootstrap 封装服务的通用启动和优雅关停逻辑。
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"recall/internal/pkg/database"
	"recall/internal/pkg/logger"
	"recall/internal/pkg/metrics"
	"recall/internal/pkg/nacos"
	"recall/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// AppCtx 是注册路由时可用的共享组件。
type AppCtx struct {
	Ctx    context.Context
	Mux    *http.ServeMux
	Pool   *database.Pool
	Config *Config

	closers *[]closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

// OnShutdown 注册关停时执行的清理函数，按注册的逆序执行。
func (a AppCtx) OnShutdown(name string, fn func(ctx context.Context) error) {
	*a.closers = append(*a.closers, closer{name: name, fn: fn})
}

// AppInfo 包含了启动一个服务所需的特定信息。
type AppInfo struct {
	ServiceName      string
	RegisterHandlers func(appCtx AppCtx) error
}

// StartService 初始化配置、日志、追踪、连接池和服务注册，启动 HTTP 服务并阻塞到收到退出信号。
func StartService(info AppInfo) error {
	cfg, err := Init()
	if err != nil {
		return err
	}
	if info.ServiceName != "" {
		cfg.App.Name = info.ServiceName
	}
	cfg.Log.Service = cfg.App.Name
	log := logger.Init(cfg.Log)
	ctx := log.WithContext(context.Background())

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(ctx, cfg.App.Name, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		return errors.Wrap(err, "init tracer provider")
	}

	// 2. 连接池
	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return err
	}

	// 3. 路由
	var closers []closer
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	mux.HandleFunc("GET /readyz", readyzHandler(pool))
	mux.Handle("GET /metrics", promhttp.Handler())
	if info.RegisterHandlers != nil {
		appCtx := AppCtx{Ctx: ctx, Mux: mux, Pool: pool, Config: cfg, closers: &closers}
		if err := info.RegisterHandlers(appCtx); err != nil {
			_ = pool.Close()
			_ = tp.Shutdown(ctx)
			return err
		}
	}

	// 4. 服务注册
	var (
		namingClient *nacos.Client
		ip           string
	)
	if cfg.Infra.Nacos.Enabled {
		if namingClient, err = nacos.NewClient(ctx, cfg.Infra.Nacos); err != nil {
			log.Error().Err(err).Msg("nacos client unavailable, skipping registration")
		} else if ip, err = getOutboundIP(); err != nil {
			log.Error().Err(err).Msg("resolve outbound ip failed, skipping registration")
			namingClient.Close()
			namingClient = nil
		} else if err = namingClient.Register(ctx, cfg.App.Name, ip, cfg.App.Port); err != nil {
			log.Error().Err(err).Msg("nacos registration failed")
			namingClient.Close()
			namingClient = nil
		}
	}

	// 5. HTTP Server
	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.App.Port),
		Handler:           TraceMiddleware(cfg.App.Name, metrics.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 6. 优雅关停
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var runErr error
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case err, ok := <-serveErr:
		if ok {
			runErr = errors.Wrap(err, "http server")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	// a. 先从注册中心摘除，不再接新流量
	if namingClient != nil {
		if err := namingClient.Deregister(shutdownCtx, cfg.App.Name, ip, cfg.App.Port); err != nil {
			log.Error().Err(err).Msg("nacos deregistration failed")
		}
		namingClient.Close()
	}
	// b. 停止 HTTP 服务
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown failed")
	}
	// c. 业务组件 (生产者、websocket hub 等)
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].fn(shutdownCtx); err != nil {
			log.Error().Err(err).Str("component", closers[i].name).Msg("close failed")
		}
	}
	// d. 连接池
	if err := pool.Close(); err != nil {
		log.Error().Err(err).Msg("close mysql pool failed")
	}
	// e. 最后刷出缓冲的 span
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracer provider shutdown failed")
	}

	log.Info().Msg("service gracefully shut down")
	return runErr
}

func readyzHandler(pool *database.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("readiness check failed")
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}

// getOutboundIP 返回本机访问外网时使用的地址，用于服务注册。
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", errors.Wrap(err, "dial udp")
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
