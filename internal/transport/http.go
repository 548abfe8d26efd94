// Package transport 提供 feed 写入的各种实现（Adafruit IO HTTP、代理、MQTT、Redis Streams、日志）
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aryaprasad08/slouch/internal/publish"

	"github.com/go-resty/resty/v2"
)

// feedValue 写入请求体
type feedValue struct {
	Value string `json:"value"`
}

// newRestyClient 创建 HTTP 客户端
// 不做客户端重试：失败由发送门控在下一次 tick 重新评估，
// 超时由调用方的 ctx 决定
func newRestyClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
}

// postFeed 发送一次写入并按状态码归类错误
func postFeed(ctx context.Context, req *resty.Request, path, feed, value string) error {
	resp, err := req.
		SetContext(ctx).
		SetBody(feedValue{Value: value}).
		Post(path)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return publish.NewTransportError(feed, publish.ErrNetworkFailure, fmt.Errorf("request timed out: %w", err))
		}
		return publish.NewTransportError(feed, publish.ErrNetworkFailure, err)
	}
	return classifyStatus(feed, resp.StatusCode(), resp.String())
}

// classifyStatus 状态码 -> 传输错误类型
func classifyStatus(feed string, status int, body string) error {
	switch status {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return publish.NewTransportError(feed, publish.ErrUnauthorized, fmt.Errorf("status %d: %s", status, body))
	case http.StatusTooManyRequests:
		return publish.NewTransportError(feed, publish.ErrRateLimited, fmt.Errorf("status %d", status))
	default:
		return publish.NewTransportError(feed, publish.ErrNetworkFailure, fmt.Errorf("unexpected status %d: %s", status, body))
	}
}
