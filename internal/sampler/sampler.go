package sampler

import (
	"context"
	"time"

	"github.com/aryaprasad08/slouch/internal/posture"
	"github.com/aryaprasad08/slouch/internal/sensor"

	"go.uber.org/zap"
)

// Sampler 每个采样 tick 读取一次倾角
//
// 读数失败时本 tick 不向下游输出任何值，只计数并记录日志，
// 也不会提前触发下一次读取（节拍由调用方的定时器决定）。
type Sampler struct {
	sensor sensor.Sensor
	logger *zap.Logger

	reads       uint64
	failures    uint64
	consecutive uint64
	lastFailure error
}

// NewSampler 创建采样器
func NewSampler(s sensor.Sensor, logger *zap.Logger) *Sampler {
	return &Sampler{
		sensor: s,
		logger: logger,
	}
}

// Sample 执行一次读取；ok 为 false 表示本 tick 无有效采样
func (s *Sampler) Sample(ctx context.Context, now time.Time) (posture.RawSample, bool) {
	s.reads++

	angle, err := s.sensor.ReadOrientation(ctx)
	if err != nil {
		s.failures++
		s.consecutive++
		s.lastFailure = err
		s.logger.Warn("Sensor read failed, skipping tick",
			zap.Error(err),
			zap.Uint64("failures", s.failures),
			zap.Uint64("consecutive_failures", s.consecutive),
		)
		return posture.RawSample{}, false
	}

	if s.consecutive > 0 {
		s.logger.Info("Sensor read recovered",
			zap.Uint64("consecutive_failures", s.consecutive),
		)
		s.consecutive = 0
	}

	return posture.RawSample{AngleDegrees: angle, Timestamp: now}, true
}

// Reads 总读取次数
func (s *Sampler) Reads() uint64 {
	return s.reads
}

// Failures 失败次数（供诊断使用）
func (s *Sampler) Failures() uint64 {
	return s.failures
}

// LastFailure 最近一次失败原因
func (s *Sampler) LastFailure() error {
	return s.lastFailure
}
