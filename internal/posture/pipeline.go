package posture

// Pipeline 平滑 + 分类的组合，每个有效采样调用一次 Process
type Pipeline struct {
	smoother   *Smoother
	classifier *Classifier
}

// NewPipeline 创建处理流水线
func NewPipeline(alpha float64, thresholds Thresholds) *Pipeline {
	return &Pipeline{
		smoother:   NewSmoother(alpha),
		classifier: NewClassifier(thresholds),
	}
}

// Process 平滑一个原始采样并推进状态机
func (p *Pipeline) Process(sample RawSample) Snapshot {
	angle := p.smoother.Update(sample)
	tr := p.classifier.Evaluate(angle)
	return Snapshot{
		Angle:      angle,
		Posture:    p.classifier.State(),
		Transition: tr,
	}
}

// Current 返回最近一次处理后的快照（不推进状态机）
// 尚未处理过任何采样时 ok 为 false
func (p *Pipeline) Current() (Snapshot, bool) {
	angle, ok := p.smoother.Current()
	if !ok {
		return Snapshot{}, false
	}
	state := p.classifier.State()
	return Snapshot{
		Angle:      angle,
		Posture:    state,
		Transition: Transition{From: state.State, To: state.State, At: angle.Timestamp},
	}, true
}

// Stats 返回会话统计
func (p *Pipeline) Stats() Stats {
	return p.classifier.Stats()
}
