package sensor

import (
	"context"
	"fmt"
	"math"
	"time"
)

// SimulatedAccelerometer 离线调试用的确定性加速度来源
//
// 以 Period 为周期：前 40% 坐直（约 1°），随后 20% 逐渐前倾到 PeakDegrees，
// 保持 20%，最后 20% 恢复坐直。每 FailEvery 次读数模拟一次 I2C 错误（0 表示不模拟）。
type SimulatedAccelerometer struct {
	Period      time.Duration
	PeakDegrees float64
	FailEvery   int

	start time.Time
	now   func() time.Time
	reads int
}

// NewSimulatedAccelerometer 创建模拟加速度来源
func NewSimulatedAccelerometer(period time.Duration, peakDegrees float64, failEvery int) *SimulatedAccelerometer {
	now := time.Now
	return &SimulatedAccelerometer{
		Period:      period,
		PeakDegrees: peakDegrees,
		FailEvery:   failEvery,
		start:       now(),
		now:         now,
	}
}

// TiltAt 返回周期内 elapsed 时刻的目标倾角（度）
func (s *SimulatedAccelerometer) TiltAt(elapsed time.Duration) float64 {
	if s.Period <= 0 {
		return 0
	}
	phase := float64(elapsed%s.Period) / float64(s.Period)
	const upright = 1.0
	switch {
	case phase < 0.4:
		return upright
	case phase < 0.6:
		return upright + (s.PeakDegrees-upright)*(phase-0.4)/0.2
	case phase < 0.8:
		return s.PeakDegrees
	default:
		return s.PeakDegrees - (s.PeakDegrees-upright)*(phase-0.8)/0.2
	}
}

// Acceleration 生成绕 Y 轴倾斜后的重力向量，叠加少量确定性抖动
func (s *SimulatedAccelerometer) Acceleration(_ context.Context) (Vector, error) {
	s.reads++
	if s.FailEvery > 0 && s.reads%s.FailEvery == 0 {
		return Vector{}, fmt.Errorf("simulated I2C glitch on read %d", s.reads)
	}

	elapsed := s.now().Sub(s.start)
	jitter := 0.3 * math.Sin(float64(elapsed)/float64(70*time.Millisecond))
	theta := (s.TiltAt(elapsed) + jitter) * math.Pi / 180.0

	const g = 9.80665
	return Vector{X: g * math.Sin(theta), Y: 0, Z: g * math.Cos(theta)}, nil
}
