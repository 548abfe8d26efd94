package proxy

import (
	"context"
	"fmt"
	"time"

	"github.com/aryaprasad08/slouch/internal/publish"
	"github.com/aryaprasad08/slouch/internal/repository"
)

// FeedSink 代理收到的 feed 值的最终去向
// 返回的错误应能被 publish.KindOf 归类
type FeedSink interface {
	Write(ctx context.Context, feed, value string) error
}

// FeedReader 可选：支持回读的 sink
type FeedReader interface {
	Latest(ctx context.Context, feed string) (*repository.FeedPoint, error)
	List(ctx context.Context, feed string, limit int) ([]*repository.FeedPoint, error)
}

// AIOSink 使用服务端持有的凭据转发到 Adafruit IO
type AIOSink struct {
	client publish.Transport
}

// NewAIOSink client 一般为 *transport.AIOClient
func NewAIOSink(client publish.Transport) *AIOSink {
	return &AIOSink{client: client}
}

// Write 原样转发到 Adafruit IO，错误类型保持不变
func (s *AIOSink) Write(ctx context.Context, feed, value string) error {
	return s.client.Publish(ctx, feed, value)
}

// PostgresSink 写入自建 feed_data 表
type PostgresSink struct {
	repo repository.FeedRepository
	now  func() time.Time
}

// NewPostgresSink 创建数据库 sink
func NewPostgresSink(repo repository.FeedRepository) *PostgresSink {
	return &PostgresSink{repo: repo, now: time.Now}
}

// Write 写入 feed_data 表
func (s *PostgresSink) Write(ctx context.Context, feed, value string) error {
	if _, err := s.repo.Append(ctx, feed, value, s.now().UTC()); err != nil {
		// 数据库暂时不可用时让设备按限流退避
		if repository.IsUnavailable(err) {
			return publish.NewTransportError(feed, publish.ErrRateLimited, err)
		}
		return publish.NewTransportError(feed, publish.ErrNetworkFailure, fmt.Errorf("store: %w", err))
	}
	return nil
}

// Latest 返回 feed 最新一条数据
func (s *PostgresSink) Latest(ctx context.Context, feed string) (*repository.FeedPoint, error) {
	return s.repo.Latest(ctx, feed)
}

func (s *PostgresSink) List(ctx context.Context, feed string, limit int) ([]*repository.FeedPoint, error) {
	return s.repo.List(ctx, feed, limit)
}
