package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqttcommon "github.com/aryaprasad08/slouch/common/mqtt"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅接口（common/mqtt.Client 实现）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqttcommon.MessageHandler) error
	Unsubscribe(topics ...string) error
}

// IMUMessage IMU 桥接程序发布的加速度消息
type IMUMessage struct {
	AX float64 `json:"ax"`
	AY float64 `json:"ay"`
	AZ float64 `json:"az"`
}

// MQTTAccelerometer 订阅 IMU 桥接主题，缓存最新一次读数
//
// 消息在 paho 的回调 goroutine 中写入，主循环读取，因此使用读写锁保护。
type MQTTAccelerometer struct {
	topic  string
	qos    byte
	maxAge time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu         sync.RWMutex
	latest     Vector
	receivedAt time.Time
	hasReading bool
}

// NewMQTTAccelerometer 创建 MQTT 加速度来源
func NewMQTTAccelerometer(topic string, qos byte, maxAge time.Duration, logger *zap.Logger) *MQTTAccelerometer {
	return &MQTTAccelerometer{
		topic:  topic,
		qos:    qos,
		maxAge: maxAge,
		now:    time.Now,
		logger: logger,
	}
}

// Start 订阅 IMU 主题
func (a *MQTTAccelerometer) Start(sub Subscriber) error {
	if err := sub.Subscribe(a.topic, a.qos, a.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to IMU topic: %w", err)
	}
	a.logger.Info("Subscribed to IMU bridge", zap.String("topic", a.topic))
	return nil
}

// Stop 取消订阅
func (a *MQTTAccelerometer) Stop(sub Subscriber) error {
	return sub.Unsubscribe(a.topic)
}

// HandleMessage 处理一条 IMU 消息
func (a *MQTTAccelerometer) HandleMessage(topic string, payload []byte) error {
	var msg IMUMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal IMU message from %s: %w", topic, err)
	}

	a.mu.Lock()
	a.latest = Vector{msg.AX, msg.AY, msg.AZ}
	a.receivedAt = a.now()
	a.hasReading = true
	a.mu.Unlock()
	return nil
}

// Acceleration 返回最新读数；没有读数或读数过期时返回 ErrNoReading
func (a *MQTTAccelerometer) Acceleration(_ context.Context) (Vector, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.hasReading {
		return Vector{}, ErrNoReading
	}
	if a.maxAge > 0 {
		if age := a.now().Sub(a.receivedAt); age > a.maxAge {
			return Vector{}, fmt.Errorf("%w: last reading %s old", ErrNoReading, age)
		}
	}
	return a.latest, nil
}
