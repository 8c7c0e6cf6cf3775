package diag

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "revealer"

// ErrUnknownExporter 表示未知的追踪导出器名称。
var ErrUnknownExporter = errors.New("unknown trace exporter")

// TraceConfig 追踪初始化参数。
type TraceConfig struct {
	Exporter string    // none|stdout|otlp
	Endpoint string    // otlp gRPC 端点（host:port）
	Insecure bool      // otlp 不启用 TLS
	Out      io.Writer // stdout 导出器目标（nil 为标准输出）
	Version  string
}

// InitTracing 安装全局 TracerProvider；返回的 shutdown 需在退出前调用以冲刷 span。
// Exporter 为 none 或空时安装 no-op，返回空操作 shutdown。
func InitTracing(ctx context.Context, cfg TraceConfig) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	var (
		exp sdktrace.SpanExporter
		err error
	)
	switch cfg.Exporter {
	case "", "none":
		return noop, nil
	case "stdout":
		opts := []stdouttrace.Option{}
		if cfg.Out != nil {
			opts = append(opts, stdouttrace.WithWriter(cfg.Out))
		}
		exp, err = stdouttrace.New(opts...)
	case "otlp":
		opts := []otlptracegrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exp, err = otlptracegrpc.New(ctx, opts...)
	default:
		return noop, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.Exporter)
	}
	if err != nil {
		return noop, fmt.Errorf("create trace exporter: %w", err)
	}
	res := resource.NewWithAttributes("",
		attribute.String("service.name", tracerName),
		attribute.String("service.version", cfg.Version),
	)
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer 返回包级 tracer（未初始化时为全局 no-op）。
func Tracer() trace.Tracer { return otel.Tracer(tracerName) }

// StartSpan 便捷封装。
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan 结束 span，并在 err 非空时记录错误。
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.code", string(Classify(err))))
	}
	span.End()
}
