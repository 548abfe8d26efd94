package transport

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport 只记录日志，不做任何网络写入（离线调试）
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) Publish(_ context.Context, feed, value string) error {
	t.logger.Info("Dry-run publish",
		zap.String("feed", feed),
		zap.String("value", value),
	)
	return nil
}
