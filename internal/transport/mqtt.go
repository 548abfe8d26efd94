package transport

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	mqttcommon "github.com/aryaprasad08/slouch/common/mqtt"
	"github.com/aryaprasad08/slouch/internal/publish"

	"go.uber.org/zap"
)

const (
	defaultThrottle       = 60 * time.Second
	defaultPublishTimeout = time.Second
)

// Adafruit IO 节流通知示例："alice data rate limit reached, 32 seconds until throttle released"
var throttleSecondsRe = regexp.MustCompile(`(\d+)\s+seconds?`)

// Broker MQTT 连接（*mqttcommon.Client 实现）
type Broker interface {
	Publish(topic string, qos byte, retained bool, payload []byte, timeout time.Duration) error
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
	IsConnected() bool
	Disconnect()
}

// MQTTPublisher 通过 Adafruit IO MQTT 写入 feed
type MQTTPublisher struct {
	broker   Broker
	username string
	qos      byte
	logger   *zap.Logger
	now      func() time.Time

	mu             sync.Mutex
	throttledUntil time.Time
}

// NewMQTTPublisher 创建 MQTT 发布器并订阅节流通知
func NewMQTTPublisher(broker Broker, username string, qos byte, logger *zap.Logger) (*MQTTPublisher, error) {
	p := &MQTTPublisher{
		broker:   broker,
		username: username,
		qos:      qos,
		logger:   logger,
		now:      time.Now,
	}

	if err := broker.Subscribe(p.throttleTopic(), 0, p.handleThrottle); err != nil {
		return nil, fmt.Errorf("failed to subscribe to throttle notices: %w", err)
	}
	return p, nil
}

func (p *MQTTPublisher) feedTopic(feed string) string {
	return p.username + "/feeds/" + feed
}

func (p *MQTTPublisher) throttleTopic() string {
	return p.username + "/throttle"
}

// handleThrottle 节流期间所有写入直接返回 RateLimited
func (p *MQTTPublisher) handleThrottle(_ string, payload []byte) error {
	wait := defaultThrottle
	if m := throttleSecondsRe.FindSubmatch(payload); m != nil {
		if secs, err := strconv.Atoi(string(m[1])); err == nil && secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
	}

	p.mu.Lock()
	p.throttledUntil = p.now().Add(wait)
	p.mu.Unlock()

	p.logger.Warn("Adafruit IO throttle notice received, suspending publishes",
		zap.String("notice", string(payload)),
		zap.Duration("wait", wait),
	)
	return nil
}

// Publish 发布 feed 值
func (p *MQTTPublisher) Publish(ctx context.Context, feed, value string) error {
	p.mu.Lock()
	until := p.throttledUntil
	p.mu.Unlock()
	if p.now().Before(until) {
		return publish.NewTransportError(feed, publish.ErrRateLimited,
			fmt.Errorf("throttled for another %s", until.Sub(p.now()).Round(time.Second)))
	}

	if !p.broker.IsConnected() {
		return publish.NewTransportError(feed, publish.ErrNetworkFailure, errors.New("mqtt not connected"))
	}

	timeout := defaultPublishTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return publish.NewTransportError(feed, publish.ErrNetworkFailure, ctx.Err())
		}
	}

	if err := p.broker.Publish(p.feedTopic(feed), p.qos, false, []byte(value), timeout); err != nil {
		return publish.NewTransportError(feed, publish.ErrNetworkFailure, err)
	}
	return nil
}

// Close 取消订阅并断开连接
func (p *MQTTPublisher) Close() error {
	err := p.broker.Unsubscribe(p.throttleTopic())
	p.broker.Disconnect()
	return err
}
