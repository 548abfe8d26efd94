package publish

import (
	"context"
	"errors"
	"time"

	"github.com/aryaprasad08/slouch/internal/posture"

	"go.uber.org/zap"
)

// Transport 云端 feed 写入接口（代理或直连）
type Transport interface {
	Publish(ctx context.Context, feed, value string) error
}

// Policy 发送抑制参数（启动时确定，之后不变）
type Policy struct {
	PushInterval   time.Duration // AIO_PUSH_INTERVAL，仅作用于倾角通道
	AngleDelta     float64       // angle_delta_threshold（度）
	PublishTimeout time.Duration // 单个 tick 内全部写入共用的时间预算
}

// Outcome 一次实际发出的写入及其结果
type Outcome struct {
	Feed  string
	Value string
	Err   error
}

// Stats 发送统计
type Stats struct {
	Attempts     uint64
	Delivered    uint64
	Unauthorized uint64
	RateLimited  uint64
	NetworkFails uint64
	Skipped      uint64 // 到期但因本 tick 预算耗尽或网络失败而延后
}

// Gate 三个输出通道共用的发送闸门
type Gate struct {
	transport Transport
	policy    Policy
	logger    *zap.Logger

	angle  *Channel
	status *Channel
	count  *Channel

	stats Stats
}

// NewGate 创建发送闸门
func NewGate(transport Transport, policy Policy, logger *zap.Logger) *Gate {
	return &Gate{
		transport: transport,
		policy:    policy,
		logger:    logger,
		angle:     NewAngleChannel(policy.PushInterval, policy.AngleDelta),
		status:    NewStatusChannel(),
		count:     NewCountChannel(),
	}
}

// Evaluate 针对同一份快照依次评估三个通道，返回本次实际发出的写入
// 三次写入共用一个截止时间；预算耗尽或出现网络失败时，本 tick 剩余的到期通道延后到下一 tick
func (g *Gate) Evaluate(ctx context.Context, snap posture.Snapshot, now time.Time) []Outcome {
	var outcomes []Outcome

	candidates := []struct {
		ch    *Channel
		value float64
	}{
		{g.angle, snap.Angle.Value},
		{g.status, float64(snap.Posture.State)},
		{g.count, float64(snap.Posture.SlouchCount)},
	}

	tickCtx := ctx
	if g.policy.PublishTimeout > 0 {
		var cancel context.CancelFunc
		tickCtx, cancel = context.WithTimeout(ctx, g.policy.PublishTimeout)
		defer cancel()
	}

	halted := false
	for _, c := range candidates {
		if !c.ch.Due(c.value, now) {
			continue
		}
		if halted || tickCtx.Err() != nil {
			g.stats.Skipped++
			g.logger.Debug("Deferred feed write to next tick", zap.String("feed", c.ch.Feed))
			continue
		}
		out := g.send(tickCtx, c.ch, c.value, now)
		outcomes = append(outcomes, out)
		if out.Err != nil && errors.Is(KindOf(out.Err), ErrNetworkFailure) {
			halted = true
		}
	}

	return outcomes
}

func (g *Gate) send(ctx context.Context, ch *Channel, value float64, now time.Time) Outcome {
	formatted := ch.Format(value)
	g.stats.Attempts++

	err := g.transport.Publish(ctx, ch.Feed, formatted)
	if err == nil {
		ch.Commit(value, now)
		g.stats.Delivered++
		g.logger.Debug("Published feed value",
			zap.String("feed", ch.Feed),
			zap.String("value", formatted),
		)
		return Outcome{Feed: ch.Feed, Value: formatted}
	}

	// 失败时不提交基线
	switch kind := KindOf(err); {
	case errors.Is(kind, ErrUnauthorized):
		g.stats.Unauthorized++
		g.logger.Error("Feed write rejected: credential invalid or rotated",
			zap.String("feed", ch.Feed),
			zap.Error(err),
		)
	case errors.Is(kind, ErrRateLimited):
		g.stats.RateLimited++
		g.logger.Warn("Feed write rate limited",
			zap.String("feed", ch.Feed),
			zap.Error(err),
		)
	default:
		g.stats.NetworkFails++
		g.logger.Warn("Feed write failed",
			zap.String("feed", ch.Feed),
			zap.Error(err),
		)
	}

	return Outcome{Feed: ch.Feed, Value: formatted, Err: err}
}

// Channel 返回指定 feed 的通道状态副本
func (g *Gate) Channel(feed string) (Channel, bool) {
	switch feed {
	case FeedAngle:
		return *g.angle, true
	case FeedStatus:
		return *g.status, true
	case FeedCount:
		return *g.count, true
	default:
		return Channel{}, false
	}
}

// Stats 返回发送统计
func (g *Gate) Stats() Stats {
	return g.stats
}
