package bootstrap

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"recall/internal/pkg/logger"
	"recall/internal/tracing"
)

// TraceMiddleware 先提取上游传来的追踪上下文并开启服务端 span，
// 再把带 trace_id 的 logger 放进 context，handler 里用 logger.Ctx 取。
// span 名和 http.route 用 ServeMux 匹配到的模式，路径里的 token 不进入追踪数据。
func TraceMiddleware(serviceName string, next http.Handler) http.Handler {
	tracer := otel.Tracer(serviceName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("http.method", r.Method)),
		)
		defer span.End()

		ctx = logger.WithTraceID(ctx, tracing.GetTraceIDFromContext(ctx))
		req := r.WithContext(ctx)
		next.ServeHTTP(w, req)

		// ServeMux 在路由时写入 req.Pattern
		route := req.Pattern
		if route == "" {
			route = "unmatched"
		}
		span.SetName(r.Method + " " + strings.TrimPrefix(route, r.Method+" "))
		span.SetAttributes(attribute.String("http.route", route))
	})
}
