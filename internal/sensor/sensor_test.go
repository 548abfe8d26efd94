package sensor

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// scriptedAccelerometer 按顺序返回预设读数
type scriptedAccelerometer struct {
	readings []Vector
	errs     []error
	i        int
}

func (s *scriptedAccelerometer) Acceleration(_ context.Context) (Vector, error) {
	idx := s.i
	s.i++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return Vector{}, s.errs[idx]
	}
	if idx < len(s.readings) {
		return s.readings[idx], nil
	}
	return s.readings[len(s.readings)-1], nil
}

func noSleep(context.Context, time.Duration) error { return nil }

func tiltVector(deg float64) Vector {
	rad := deg * math.Pi / 180
	return Vector{X: math.Sin(rad), Y: 0, Z: math.Cos(rad)}
}

func TestAngleBetween(t *testing.T) {
	up := Vector{0, 0, 1}
	assert.InDelta(t, 0.0, AngleBetween(up, up), 1e-9)
	assert.InDelta(t, 90.0, AngleBetween(up, Vector{1, 0, 0}), 1e-9)
	assert.InDelta(t, 180.0, AngleBetween(up, Vector{0, 0, -1}), 1e-9)

	// 浮点误差导致点积略大于 1 时也不会得到 NaN
	assert.False(t, math.IsNaN(AngleBetween(Vector{1.0000001, 0, 0}, Vector{1, 0, 0})))
}

func TestVector_NormalizeDegenerate(t *testing.T) {
	_, err := Vector{0, 0, 1e-9}.Normalize()
	assert.ErrorIs(t, err, ErrDegenerateVector)

	g, err := Vector{0, 3, 4}.Normalize()
	require.NoError(t, err)
	assert.InDelta(t, 1.0, g.Norm(), 1e-12)
}

func TestTiltSensor_CalibrateAndRead(t *testing.T) {
	accel := &scriptedAccelerometer{readings: []Vector{
		{0, 0, 9.8}, {0, 0, 9.7}, {0, 0, 9.9},
		tiltVector(30), tiltVector(30),
	}}
	s := NewTiltSensor(accel, 150*time.Millisecond, 50*time.Millisecond, zap.NewNop())
	s.sleep = noSleep

	_, err := s.ReadOrientation(context.Background())
	assert.ErrorIs(t, err, ErrNotCalibrated)
	accel.i = 0

	require.NoError(t, s.Calibrate(context.Background()))
	baseline, ok := s.Baseline()
	require.True(t, ok)
	assert.InDelta(t, 1.0, baseline.Z, 1e-9)

	angle, err := s.ReadOrientation(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 30.0, angle, 1e-6)
}

func TestTiltSensor_CalibrateSkipsFailedReads(t *testing.T) {
	glitch := errors.New("i2c glitch")
	accel := &scriptedAccelerometer{
		readings: []Vector{{}, {0, 0, 9.8}, {}, {0, 0, 9.8}},
		errs:     []error{glitch, nil, glitch, nil},
	}
	s := NewTiltSensor(accel, 200*time.Millisecond, 50*time.Millisecond, zap.NewNop())
	s.sleep = noSleep

	require.NoError(t, s.Calibrate(context.Background()))
	baseline, _ := s.Baseline()
	assert.InDelta(t, 1.0, baseline.Z, 1e-9)
}

func TestTiltSensor_CalibrateFailsWithoutReadings(t *testing.T) {
	glitch := errors.New("i2c glitch")
	accel := &scriptedAccelerometer{
		readings: []Vector{{}},
		errs:     []error{glitch, glitch, glitch},
	}
	s := NewTiltSensor(accel, 150*time.Millisecond, 50*time.Millisecond, zap.NewNop())
	s.sleep = noSleep

	err := s.Calibrate(context.Background())
	assert.ErrorIs(t, err, ErrNoReading)
	_, ok := s.Baseline()
	assert.False(t, ok)
}

func TestTiltSensor_ReadFailurePropagates(t *testing.T) {
	glitch := errors.New("i2c glitch")
	accel := &scriptedAccelerometer{readings: []Vector{{}}, errs: []error{glitch}}
	s := NewTiltSensor(accel, 0, 50*time.Millisecond, zap.NewNop())
	require.NoError(t, s.SetBaseline(Vector{0, 0, 1}))

	_, err := s.ReadOrientation(context.Background())
	assert.ErrorIs(t, err, glitch)

	// 零向量也视为读数失败
	_, err = s.ReadOrientation(context.Background())
	assert.ErrorIs(t, err, ErrDegenerateVector)
}

func TestMQTTAccelerometer_LatestReading(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	a := NewMQTTAccelerometer("imu/wearable-1/accel", 0, time.Second, zap.NewNop())
	a.now = func() time.Time { return now }

	_, err := a.Acceleration(context.Background())
	assert.ErrorIs(t, err, ErrNoReading)

	require.NoError(t, a.HandleMessage("imu/wearable-1/accel", []byte(`{"ax":0.1,"ay":-0.2,"az":9.8}`)))
	v, err := a.Acceleration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Vector{0.1, -0.2, 9.8}, v)

	now = now.Add(1500 * time.Millisecond)
	_, err = a.Acceleration(context.Background())
	assert.ErrorIs(t, err, ErrNoReading)
}

func TestMQTTAccelerometer_RejectsMalformedPayload(t *testing.T) {
	a := NewMQTTAccelerometer("imu/x", 0, 0, zap.NewNop())
	err := a.HandleMessage("imu/x", []byte("not-json"))
	assert.Error(t, err)

	_, err = a.Acceleration(context.Background())
	assert.ErrorIs(t, err, ErrNoReading)
}

func TestSimulatedAccelerometer_Profile(t *testing.T) {
	s := NewSimulatedAccelerometer(10*time.Second, 9.0, 0)

	assert.Equal(t, 1.0, s.TiltAt(0))
	assert.Equal(t, 1.0, s.TiltAt(3*time.Second))
	assert.InDelta(t, 5.0, s.TiltAt(5*time.Second), 1e-9)
	assert.Equal(t, 9.0, s.TiltAt(7*time.Second))
	assert.InDelta(t, 5.0, s.TiltAt(9*time.Second), 1e-9)
	assert.Equal(t, 1.0, s.TiltAt(10*time.Second))
}

func TestSimulatedAccelerometer_InjectsFailures(t *testing.T) {
	s := NewSimulatedAccelerometer(10*time.Second, 9.0, 3)

	failures := 0
	for i := 0; i < 9; i++ {
		v, err := s.Acceleration(context.Background())
		if err != nil {
			failures++
			continue
		}
		assert.InDelta(t, 9.80665, v.Norm(), 1e-9)
	}
	assert.Equal(t, 3, failures)
}
