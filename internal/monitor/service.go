// Package monitor 组合采样、平滑分类与发送门控，按固定节拍运行姿态监测主循环
package monitor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aryaprasad08/slouch/internal/config"
	"github.com/aryaprasad08/slouch/internal/posture"
	"github.com/aryaprasad08/slouch/internal/publish"
	"github.com/aryaprasad08/slouch/internal/sampler"
	"github.com/aryaprasad08/slouch/internal/sensor"

	"go.uber.org/zap"
)

// TickResult 一次 tick 的结果
type TickResult struct {
	Sampled  bool             // false 表示读数失败，本 tick 无任何下游输出
	Snapshot posture.Snapshot // Sampled 为 true 时有效
	Outcomes []publish.Outcome
}

// Option 服务选项
type Option func(*MonitorService)

// WithClock 替换时钟（测试用）
func WithClock(now func() time.Time) Option {
	return func(s *MonitorService) {
		s.now = now
	}
}

// MonitorService 姿态监测服务
//
// 所有状态只在 tick 内被修改，tick 之间串行执行；
// Stop 只读取统计信息，需在 Start 返回之后调用。
type MonitorService struct {
	config    *config.Config
	sensor    sensor.Sensor
	transport publish.Transport
	logger    *zap.Logger
	now       func() time.Time

	sampler  *sampler.Sampler
	pipeline *posture.Pipeline
	gate     *publish.Gate

	startedAt   time.Time
	lastDisplay time.Time
	ticks       uint64

	stopOnce sync.Once
}

// NewMonitorService 创建监测服务
func NewMonitorService(cfg *config.Config, s sensor.Sensor, transport publish.Transport, logger *zap.Logger, opts ...Option) *MonitorService {
	thresholds := posture.Thresholds{
		Enter:        cfg.Posture.EnterThreshold,
		Exit:         cfg.Posture.ExitThreshold,
		TimeRequired: cfg.Posture.TimeRequired,
	}

	svc := &MonitorService{
		config:    cfg,
		sensor:    s,
		transport: transport,
		logger:    logger,
		now:       time.Now,
		sampler:   sampler.NewSampler(s, logger),
		pipeline:  posture.NewPipeline(cfg.Posture.EMAAlpha, thresholds),
		gate: publish.NewGate(transport, publish.Policy{
			PushInterval:   cfg.Publish.PushInterval,
			AngleDelta:     cfg.Publish.AngleDelta,
			PublishTimeout: cfg.Publish.Timeout,
		}, logger),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.startedAt = svc.now()
	return svc
}

// Start 校准传感器后运行主循环，直到 ctx 取消
func (s *MonitorService) Start(ctx context.Context) error {
	if c, ok := s.sensor.(sensor.Calibrator); ok {
		s.logger.Info("Calibrating sensor, sit upright",
			zap.Duration("duration", s.config.Posture.CalibrationDuration),
		)
		if err := c.Calibrate(ctx); err != nil {
			return fmt.Errorf("failed to calibrate sensor: %w", err)
		}
		s.logger.Info("Sensor calibrated")
	}

	s.startedAt = s.now()
	s.logger.Info("Posture monitor started",
		zap.Duration("sample_interval", s.config.Posture.SampleInterval),
		zap.Float64("enter_threshold", s.config.Posture.EnterThreshold),
		zap.Float64("exit_threshold", s.config.Posture.ExitThreshold),
		zap.Duration("time_required", s.config.Posture.TimeRequired),
		zap.String("transport", s.config.Publish.Transport),
	)

	ticker := time.NewTicker(s.config.Posture.SampleInterval)
	defer ticker.Stop()

	// tick 开始后不在中途取消，只在两次 tick 之间响应退出
	tickCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick(tickCtx, s.now())
		}
	}
}

// Tick 执行一次完整的采样 -> 平滑分类 -> 发送评估
func (s *MonitorService) Tick(ctx context.Context, now time.Time) TickResult {
	s.ticks++

	sample, ok := s.sampler.Sample(ctx, now)
	if !ok {
		return TickResult{}
	}

	snap := s.pipeline.Process(sample)
	if snap.Transition.Changed() {
		s.logger.Info("Posture state changed",
			zap.String("from", snap.Transition.From.String()),
			zap.String("to", snap.Transition.To.String()),
			zap.Float64("angle", snap.Angle.Value),
			zap.Uint64("slouch_count", snap.Posture.SlouchCount),
		)
	}

	outcomes := s.gate.Evaluate(ctx, snap, now)
	s.display(snap, now)

	return TickResult{Sampled: true, Snapshot: snap, Outcomes: outcomes}
}

// display 节流输出当前状态
func (s *MonitorService) display(snap posture.Snapshot, now time.Time) {
	if now.Sub(s.lastDisplay) < s.config.Posture.DisplayInterval {
		return
	}
	s.lastDisplay = now

	stats := s.pipeline.Stats()
	s.logger.Debug("Posture",
		zap.String("state", snap.Posture.State.String()),
		zap.Float64("angle", snap.Angle.Value),
		zap.Uint64("slouch_count", snap.Posture.SlouchCount),
		zap.Duration("good_streak", stats.CurrentGoodStreak),
		zap.Duration("slouch_time", stats.SlouchTime),
	)
}

// Pipeline 当前姿态状态（只读）
func (s *MonitorService) Pipeline() *posture.Pipeline {
	return s.pipeline
}

// Gate 发送门控（只读）
func (s *MonitorService) Gate() *publish.Gate {
	return s.gate
}

// Stop 输出会话统计并释放传输层资源
func (s *MonitorService) Stop(_ context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		stats := s.pipeline.Stats()
		gateStats := s.gate.Stats()
		s.logger.Info("Posture session summary",
			zap.Duration("session", s.now().Sub(s.startedAt).Round(time.Second)),
			zap.Uint64("ticks", s.ticks),
			zap.Uint64("sensor_failures", s.sampler.Failures()),
			zap.Uint64("slouch_count", stats.SlouchCount),
			zap.Duration("slouch_time", stats.SlouchTime),
			zap.Duration("best_good_streak", stats.BestGoodStreak),
			zap.Uint64("publish_attempts", gateStats.Attempts),
			zap.Uint64("publish_delivered", gateStats.Delivered),
			zap.Uint64("publish_rate_limited", gateStats.RateLimited),
			zap.Uint64("publish_unauthorized", gateStats.Unauthorized),
			zap.Uint64("publish_network_failures", gateStats.NetworkFails),
		)

		if closer, ok := s.transport.(io.Closer); ok {
			if cerr := closer.Close(); cerr != nil {
				err = fmt.Errorf("failed to close transport: %w", cerr)
			}
		}
	})
	return err
}
