package posture

// Smoother 指数滑动平均滤波器
type Smoother struct {
	alpha       float64
	current     SmoothedAngle
	initialized bool
}

// NewSmoother 创建 EMA 滤波器，alpha ∈ (0,1] 由配置校验保证
func NewSmoother(alpha float64) *Smoother {
	return &Smoother{alpha: alpha}
}

// Update 输入一个原始采样，返回新的平滑值
// 第一个有效采样原样作为初始值，避免冷启动时向 0 偏置
func (s *Smoother) Update(sample RawSample) SmoothedAngle {
	if !s.initialized {
		s.current = SmoothedAngle{Value: sample.AngleDegrees, Timestamp: sample.Timestamp}
		s.initialized = true
		return s.current
	}

	s.current = SmoothedAngle{
		Value:     s.alpha*sample.AngleDegrees + (1.0-s.alpha)*s.current.Value,
		Timestamp: sample.Timestamp,
	}
	return s.current
}

// Current 返回当前平滑值；尚未收到有效采样时 ok 为 false
func (s *Smoother) Current() (SmoothedAngle, bool) {
	return s.current, s.initialized
}

// Alpha 返回平滑系数
func (s *Smoother) Alpha() float64 {
	return s.alpha
}
