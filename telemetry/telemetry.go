// Package telemetry 初始化 OpenTelemetry 指标并通过 Prometheus 暴露
package telemetry

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"financify/config"
)

// Init 创建 Prometheus 导出器并注册为全局 MeterProvider，返回关闭函数
func Init(ctx context.Context, cfg config.TelemetryConfig) (shutdown func(context.Context) error, err error) {
	shutdown = func(context.Context) error { return nil }
	if !cfg.Enabled {
		return shutdown, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return shutdown, fmt.Errorf("创建 resource 失败: %w", err)
	}

	// 注册到 prometheus 默认 registry
	exporter, err := prometheus.New()
	if err != nil {
		return shutdown, fmt.Errorf("创建 prometheus 导出器失败: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	log.Printf("指标已启用，服务名: %s", cfg.ServiceName)
	return provider.Shutdown, nil
}

// Handler /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

var (
	httpMeter          = otel.Meter("financify/http")
	httpRequests, _    = httpMeter.Int64Counter("http.server.requests", metric.WithDescription("HTTP requests by route and status"))
	httpDurationSec, _ = httpMeter.Float64Histogram("http.server.duration", metric.WithDescription("HTTP request duration in seconds"), metric.WithUnit("s"))
)

// GinMiddleware 记录每个路由的请求数与耗时
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		attrs := metric.WithAttributes(
			attribute.String("http.route", route),
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.status", strconv.Itoa(c.Writer.Status())),
		)
		httpRequests.Add(c.Request.Context(), 1, attrs)
		httpDurationSec.Record(c.Request.Context(), time.Since(start).Seconds(), attrs)
	}
}
