package transport

import (
	"context"
	"fmt"
	"net/url"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// AIOClient Adafruit IO REST feed 客户端
type AIOClient struct {
	httpClient *resty.Client
	username   string
	logger     *zap.Logger
}

// NewAIOClient 创建 Adafruit IO 客户端
func NewAIOClient(baseURL, username, key string, logger *zap.Logger) *AIOClient {
	client := newRestyClient(baseURL).
		SetHeader("X-AIO-Key", key)

	return &AIOClient{
		httpClient: client,
		username:   username,
		logger:     logger,
	}
}

// Publish 向 feed 追加一个数据点
func (c *AIOClient) Publish(ctx context.Context, feed, value string) error {
	path := fmt.Sprintf("/api/v2/%s/feeds/%s/data", url.PathEscape(c.username), url.PathEscape(feed))

	if err := postFeed(ctx, c.httpClient.R(), path, feed, value); err != nil {
		return err
	}

	c.logger.Debug("Feed value delivered to Adafruit IO",
		zap.String("feed", feed),
		zap.String("value", value),
	)
	return nil
}
