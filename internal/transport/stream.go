package transport

import (
	"context"
	"fmt"
	"time"

	rediscommon "github.com/aryaprasad08/slouch/common/redis"
	"github.com/aryaprasad08/slouch/internal/publish"

	"go.uber.org/zap"
)

// StreamPublisher 把 feed 值写入本地 Redis Stream，由下游服务转发
type StreamPublisher struct {
	client *rediscommon.Client
	stream string
	maxLen int64
	logger *zap.Logger
	now    func() time.Time
}

// NewStreamPublisher 创建 Redis Streams 发布器
func NewStreamPublisher(client *rediscommon.Client, stream string, maxLen int64, logger *zap.Logger) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
		now:    time.Now,
	}
}

func (p *StreamPublisher) Publish(ctx context.Context, feed, value string) error {
	id, err := rediscommon.PublishToStream(ctx, p.client, p.stream, p.maxLen, map[string]interface{}{
		"feed":      feed,
		"value":     value,
		"timestamp": p.now().UnixMilli(),
	})
	if err != nil {
		return publish.NewTransportError(feed, publish.ErrNetworkFailure, fmt.Errorf("failed to publish to stream %s: %w", p.stream, err))
	}

	p.logger.Debug("Feed value published to stream",
		zap.String("stream", p.stream),
		zap.String("id", id),
		zap.String("feed", feed),
	)
	return nil
}

// Close 关闭 Redis 连接
func (p *StreamPublisher) Close() error {
	return rediscommon.Close(p.client)
}
