package repository

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 查询无结果
var ErrNotFound = errors.New("feed data not found")

// FeedPoint feed 中的一个数据点
type FeedPoint struct {
	ID        string    `json:"id"`         // UUID
	Feed      string    `json:"feed"`       // posture-angle / posture-status / slouch-count
	Value     string    `json:"value"`      // 原样保存设备上报的字符串
	CreatedAt time.Time `json:"created_at"` // 服务端接收时间
}

// FeedRepository 自建 feed 存储接口（posture-proxy 的 PostgresSink 使用）
type FeedRepository interface {
	// EnsureSchema 建表（幂等）
	EnsureSchema(ctx context.Context) error

	// Append 追加一个数据点
	Append(ctx context.Context, feed, value string, at time.Time) (*FeedPoint, error)

	// Latest 获取 feed 最新的数据点
	Latest(ctx context.Context, feed string) (*FeedPoint, error)

	// List 按时间倒序列出 feed 最近的数据点
	List(ctx context.Context, feed string, limit int) ([]*FeedPoint, error)
}
