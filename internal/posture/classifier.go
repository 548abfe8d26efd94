package posture

import "time"

// Classifier 三态滞回状态机
//
// 状态切换规则：
//   - Good -> SlouchPending：平滑值 >= Enter，记录 PendingSince
//   - SlouchPending -> Slouching：自 PendingSince 起持续 >= Enter 且已满 TimeRequired，计数加一
//   - SlouchPending -> Good：确认前平滑值 < Exit
//   - Slouching -> Good：平滑值 < Exit
//
// SlouchPending 期间若平滑值回落到滞回区间 [Exit, Enter)，保持 SlouchPending，
// 但连续计时中断；下一次 >= Enter 时重新开始计时。
type Classifier struct {
	thresholds Thresholds
	state      PostureState

	stats        Stats
	goodSince    time.Time
	episodeStart time.Time
	started      bool
}

// NewClassifier 创建状态机，初始状态为 {Good, 0}
func NewClassifier(thresholds Thresholds) *Classifier {
	return &Classifier{thresholds: thresholds}
}

// Evaluate 用一个新的平滑值推进状态机（每个平滑值只评估一次）
func (c *Classifier) Evaluate(angle SmoothedAngle) Transition {
	now := angle.Timestamp
	v := angle.Value
	if !c.started {
		c.goodSince = now
		c.started = true
	}

	tr := Transition{From: c.state.State, To: c.state.State, At: now}

	switch c.state.State {
	case Good:
		if v >= c.thresholds.Enter {
			c.state.State = SlouchPending
			c.state.PendingSince = now
			c.episodeStart = now
		}

	case SlouchPending:
		switch {
		case v < c.thresholds.Exit:
			c.state.State = Good
			c.state.PendingSince = time.Time{}
		case v >= c.thresholds.Enter:
			if !c.state.HasPending() {
				c.state.PendingSince = now
			}
			if now.Sub(c.state.PendingSince) >= c.thresholds.TimeRequired {
				c.state.State = Slouching
				c.state.SlouchCount++
				c.state.PendingSince = time.Time{}
				tr.CountIncremented = true
			}
		default:
			// 滞回区间内：连续计时中断
			c.state.PendingSince = time.Time{}
		}

	case Slouching:
		if v < c.thresholds.Exit {
			c.state.State = Good
			c.stats.SlouchTime += now.Sub(c.episodeStart)
			c.goodSince = now
		}
	}

	tr.To = c.state.State
	c.updateStreak(now)
	return tr
}

func (c *Classifier) updateStreak(now time.Time) {
	c.stats.SlouchCount = c.state.SlouchCount
	if c.state.State == Slouching {
		c.stats.CurrentGoodStreak = 0
		return
	}
	c.stats.CurrentGoodStreak = now.Sub(c.goodSince)
	if c.stats.CurrentGoodStreak > c.stats.BestGoodStreak {
		c.stats.BestGoodStreak = c.stats.CurrentGoodStreak
	}
}

// State 返回当前状态（只读副本）
func (c *Classifier) State() PostureState {
	return c.state
}

// Stats 返回会话统计
func (c *Classifier) Stats() Stats {
	return c.stats
}

// Thresholds 返回阈值配置
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}
