package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aryaprasad08/slouch/common/config"
	mqttcommon "github.com/aryaprasad08/slouch/common/mqtt"
	"github.com/aryaprasad08/slouch/internal/publish"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	Topic   string
	QoS     byte
	Payload string
	Timeout time.Duration
}

// fakeBroker 记录发布内容，可注入错误
type fakeBroker struct {
	mu         sync.Mutex
	connected  bool
	publishErr error
	published  []published
	handlers   map[string]mqttcommon.MessageHandler
	disconnect bool
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{connected: true, handlers: map[string]mqttcommon.MessageHandler{}}
}

func (b *fakeBroker) Publish(topic string, qos byte, _ bool, payload []byte, timeout time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.publishErr != nil {
		return b.publishErr
	}
	b.published = append(b.published, published{topic, qos, string(payload), timeout})
	return nil
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqttcommon.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		delete(b.handlers, topic)
	}
	return nil
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Disconnect() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.disconnect = true
}

func (b *fakeBroker) deliver(topic, payload string) error {
	b.mu.Lock()
	h := b.handlers[topic]
	b.mu.Unlock()
	if h == nil {
		return fmt.Errorf("no subscriber for %s", topic)
	}
	return h(topic, []byte(payload))
}

func TestMQTTPublisher_PublishesToFeedTopic(t *testing.T) {
	b := newFakeBroker()
	p, err := NewMQTTPublisher(b, "alice", 1, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Publish(ctx, publish.FeedAngle, "7.4"))

	require.Len(t, b.published, 1)
	assert.Equal(t, "alice/feeds/posture-angle", b.published[0].Topic)
	assert.Equal(t, byte(1), b.published[0].QoS)
	assert.Equal(t, "7.4", b.published[0].Payload)
	assert.LessOrEqual(t, b.published[0].Timeout, 500*time.Millisecond)
}

func TestMQTTPublisher_ThrottleNotice(t *testing.T) {
	b := newFakeBroker()
	p, err := NewMQTTPublisher(b, "alice", 0, zap.NewNop())
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	require.NoError(t, b.deliver("alice/throttle", "alice data rate limit reached, 30 seconds until throttle released"))

	err = p.Publish(context.Background(), publish.FeedStatus, "slouching")
	assert.ErrorIs(t, err, publish.ErrRateLimited)
	assert.Empty(t, b.published)

	now = now.Add(31 * time.Second)
	require.NoError(t, p.Publish(context.Background(), publish.FeedStatus, "slouching"))
	assert.Len(t, b.published, 1)
}

func TestMQTTPublisher_ThrottleWithoutSecondsUsesDefault(t *testing.T) {
	b := newFakeBroker()
	p, err := NewMQTTPublisher(b, "alice", 0, zap.NewNop())
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }
	require.NoError(t, b.deliver("alice/throttle", "slow down"))

	now = now.Add(59 * time.Second)
	assert.ErrorIs(t, p.Publish(context.Background(), publish.FeedAngle, "1.0"), publish.ErrRateLimited)
	now = now.Add(2 * time.Second)
	assert.NoError(t, p.Publish(context.Background(), publish.FeedAngle, "1.0"))
}

func TestMQTTPublisher_NetworkFailures(t *testing.T) {
	b := newFakeBroker()
	p, err := NewMQTTPublisher(b, "alice", 0, zap.NewNop())
	require.NoError(t, err)

	b.publishErr = errors.New("timeout after 1s")
	assert.ErrorIs(t, p.Publish(context.Background(), publish.FeedAngle, "1.0"), publish.ErrNetworkFailure)

	b.publishErr = nil
	b.connected = false
	assert.ErrorIs(t, p.Publish(context.Background(), publish.FeedAngle, "1.0"), publish.ErrNetworkFailure)
}

func TestMQTTPublisher_Close(t *testing.T) {
	b := newFakeBroker()
	p, err := NewMQTTPublisher(b, "alice", 0, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, b.disconnect)
	assert.Empty(t, b.handlers)
}

const (
	mochiAddress  = "localhost:18831"
	mochiUsername = "alice"
	mochiPassword = "aio_secret"
)

func startMochi(t *testing.T) *mochi.Server {
	t.Helper()
	ledger := &auth.Ledger{
		Auth: auth.AuthRules{
			{
				Username: auth.RString(mochiUsername),
				Password: auth.RString(mochiPassword),
				Allow:    true,
			},
		},
	}

	server := mochi.New(&mochi.Options{InlineClient: true})
	require.NoError(t, server.AddHook(new(auth.Hook), &auth.Options{Ledger: ledger}))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		ID:      "t1",
		Type:    "tcp",
		Address: mochiAddress,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func TestMQTTPublisher_WithMochi(t *testing.T) {
	server := startMochi(t)

	var mu sync.Mutex
	var received []string
	require.NoError(t, server.Subscribe("alice/feeds/#", 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, pk.TopicName+"="+string(pk.Payload))
	}))

	t.Run("bad credentials are unauthorized", func(t *testing.T) {
		_, err := mqttcommon.NewClient(&config.MQTTConfig{
			Broker:   "tcp://" + mochiAddress,
			ClientID: "posture-monitor-bad",
			Username: mochiUsername,
			Password: "wrong",
		}, zap.NewNop())
		assert.ErrorIs(t, err, mqttcommon.ErrNotAuthorized)
	})

	t.Run("publish and throttle", func(t *testing.T) {
		client, err := mqttcommon.NewClient(&config.MQTTConfig{
			Broker:   "tcp://" + mochiAddress,
			ClientID: "posture-monitor",
			Username: mochiUsername,
			Password: mochiPassword,
		}, zap.NewNop())
		require.NoError(t, err)

		p, err := NewMQTTPublisher(client, mochiUsername, 0, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Close() })

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, p.Publish(ctx, publish.FeedStatus, "slouching"))

		require.Eventually(t, func() bool {
			mu.Lock()
			defer mu.Unlock()
			return len(received) == 1
		}, 2*time.Second, 20*time.Millisecond)
		mu.Lock()
		assert.Equal(t, "alice/feeds/posture-status=slouching", received[0])
		mu.Unlock()

		require.NoError(t, server.Publish("alice/throttle", []byte("alice data rate limit reached, 5 seconds until throttle released"), false, 0))
		require.Eventually(t, func() bool {
			return errors.Is(p.Publish(context.Background(), publish.FeedCount, "1"), publish.ErrRateLimited)
		}, 2*time.Second, 20*time.Millisecond)
	})
}
