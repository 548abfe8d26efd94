package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/aryaprasad08/slouch/common/config"

	"github.com/go-redis/redis/v8"
)

// Client go-redis 客户端
type Client = redis.Client

// NewRedisClient 创建 Redis 客户端
// 不做内部重试，命令失败直接返回给调用方；单次命令的截止时间由调用方 ctx 控制
func NewRedisClient(cfg *config.RedisConfig) *Client {
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		MaxRetries:  -1,
		DialTimeout: 2 * time.Second,
		PoolSize:    2,
	})
}

// Ping 检查 Redis 是否可达
func Ping(ctx context.Context, client *Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis at %s: %w", client.Options().Addr, err)
	}
	return nil
}

// Close 关闭连接；client 为 nil 时什么也不做
func Close(client *Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
