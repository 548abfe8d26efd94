// Package sensor 提供姿态倾角读数
//
// 倾角定义为校准时的"坐直"重力方向与当前加速度方向之间的夹角（度）。
// 加速度来源可以是 MQTT 桥接的 IMU，也可以是离线调试用的模拟数据。
package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrNoReading 没有可用的加速度读数（尚未收到或已过期）
	ErrNoReading = errors.New("no accelerometer reading available")
	// ErrDegenerateVector 加速度向量模长接近 0，无法求方向
	ErrDegenerateVector = errors.New("degenerate acceleration vector")
	// ErrNotCalibrated 尚未完成基线校准
	ErrNotCalibrated = errors.New("sensor not calibrated")
)

// Sensor 姿态倾角读数接口
type Sensor interface {
	ReadOrientation(ctx context.Context) (float64, error)
}

// Calibrator 需要在启动时校准的传感器
type Calibrator interface {
	Calibrate(ctx context.Context) error
}

// Accelerometer 三轴加速度来源
type Accelerometer interface {
	Acceleration(ctx context.Context) (Vector, error)
}

// Vector 三维向量
type Vector struct {
	X, Y, Z float64
}

// Norm 模长
func (v Vector) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize 单位化；模长过小时返回 ErrDegenerateVector
func (v Vector) Normalize() (Vector, error) {
	m := v.Norm()
	if m < 1e-6 {
		return Vector{}, ErrDegenerateVector
	}
	return Vector{v.X / m, v.Y / m, v.Z / m}, nil
}

// Dot 点积
func (v Vector) Dot(o Vector) float64 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// AngleBetween 两个单位向量之间的夹角（度）
func AngleBetween(a, b Vector) float64 {
	d := math.Max(-1.0, math.Min(1.0, a.Dot(b)))
	return math.Acos(d) * 180.0 / math.Pi
}

// TiltSensor 基于加速度计和校准基线计算倾角
type TiltSensor struct {
	accel      Accelerometer
	samples    int
	interval   time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	baseline   Vector
	calibrated bool
	logger     *zap.Logger
}

// NewTiltSensor 创建倾角传感器
// calibration 为校准时长，interval 为校准采样间隔（与 SAMPLE_INTERVAL 相同）
func NewTiltSensor(accel Accelerometer, calibration, interval time.Duration, logger *zap.Logger) *TiltSensor {
	samples := 1
	if interval > 0 && calibration > interval {
		samples = int(calibration / interval)
	}
	return &TiltSensor{
		accel:    accel,
		samples:  samples,
		interval: interval,
		sleep:    sleepContext,
		logger:   logger,
	}
}

// Calibrate 平均若干个单位化读数作为"坐直"基线
// 失败读数会被跳过；一个有效读数都没有时返回错误（启动失败）
func (s *TiltSensor) Calibrate(ctx context.Context) error {
	s.logger.Info("Calibrating baseline, sit upright",
		zap.Int("samples", s.samples),
		zap.Duration("interval", s.interval),
	)

	var sum Vector
	valid := 0
	for i := 0; i < s.samples; i++ {
		if v, err := s.accel.Acceleration(ctx); err == nil {
			if g, err := v.Normalize(); err == nil {
				sum = Vector{sum.X + g.X, sum.Y + g.Y, sum.Z + g.Z}
				valid++
			}
		}
		if i < s.samples-1 {
			if err := s.sleep(ctx, s.interval); err != nil {
				return fmt.Errorf("calibration interrupted: %w", err)
			}
		}
	}

	if valid == 0 {
		return fmt.Errorf("failed to calibrate: %w", ErrNoReading)
	}

	baseline, err := sum.Normalize()
	if err != nil {
		return fmt.Errorf("failed to calibrate: %w", err)
	}

	s.baseline = baseline
	s.calibrated = true
	s.logger.Info("Baseline calibrated",
		zap.Float64("gx", baseline.X),
		zap.Float64("gy", baseline.Y),
		zap.Float64("gz", baseline.Z),
		zap.Int("valid_samples", valid),
	)
	return nil
}

// SetBaseline 直接设置基线（测试或已知安装姿态时使用）
func (s *TiltSensor) SetBaseline(v Vector) error {
	g, err := v.Normalize()
	if err != nil {
		return err
	}
	s.baseline = g
	s.calibrated = true
	return nil
}

// Baseline 返回当前基线
func (s *TiltSensor) Baseline() (Vector, bool) {
	return s.baseline, s.calibrated
}

// ReadOrientation 读取一次倾角（度）
func (s *TiltSensor) ReadOrientation(ctx context.Context) (float64, error) {
	if !s.calibrated {
		return 0, ErrNotCalibrated
	}
	v, err := s.accel.Acceleration(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read acceleration: %w", err)
	}
	g, err := v.Normalize()
	if err != nil {
		return 0, err
	}
	return AngleBetween(s.baseline, g), nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
