// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

var base zerolog.Logger

func init() {
	// 配置 zerolog：统一时间格式，默认输出到 stdout
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	base = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 在服务启动时设置服务名和日志级别
func Init(serviceName, level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	base = base.Level(lvl).With().Str("service", serviceName).Logger()
}

// Logger 返回全局 logger
func Logger() *zerolog.Logger {
	return &base
}

// Ctx 返回一个绑定了追踪上下文的 logger
// 如果 ctx 中存在有效的 Span，则自动附加 trace_id，便于日志与链路关联
func Ctx(ctx context.Context) *zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return &base
	}
	l := base.With().Str("trace_id", sc.TraceID().String()).Logger()
	return &l
}
