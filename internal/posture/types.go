// Package posture 实现姿态信号处理核心：
//
// - 指数滑动平均（EMA）平滑原始倾角
// - 三态滞回状态机（good / slouch_pending / slouching），进入驼背需要持续时间确认
// - 会话统计（驼背次数、驼背总时长、良好姿态连续时长）
//
// 所有状态只在设备主循环（单线程）中更新，包内不做加锁。
// 重启后状态与计数从 {Good, 0} 重新开始，不做持久化。
package posture

import "time"

// State 姿态状态
type State int

const (
	Good State = iota
	SlouchPending
	Slouching
)

// String 返回 posture-status feed 使用的取值
func (s State) String() string {
	switch s {
	case Good:
		return "good"
	case SlouchPending:
		return "slouch_pending"
	case Slouching:
		return "slouching"
	default:
		return "unknown"
	}
}

// ParseState 将 feed 取值解析回状态
func ParseState(value string) (State, bool) {
	switch value {
	case "good":
		return Good, true
	case "slouch_pending":
		return SlouchPending, true
	case "slouching":
		return Slouching, true
	default:
		return Good, false
	}
}

// RawSample 一次原始倾角采样（只在一次平滑步骤内有效）
type RawSample struct {
	AngleDegrees float64
	Timestamp    time.Time
}

// SmoothedAngle 平滑后的倾角，同一时间只有一个有效值
type SmoothedAngle struct {
	Value     float64
	Timestamp time.Time
}

// Thresholds 状态机阈值
//
// Exit < Enter 由配置方保证；如果不满足，状态机可能快速振荡（配置风险，运行时不做拦截）。
type Thresholds struct {
	Enter        float64       // SLOUCH_ENTER_THRESHOLD（度）
	Exit         float64       // SLOUCH_EXIT_THRESHOLD（度）
	TimeRequired time.Duration // SLOUCH_TIME_REQUIRED
}

// PostureState 状态机当前状态
type PostureState struct {
	State        State
	PendingSince time.Time // 仅在 SlouchPending 且处于连续超阈值区间时非零
	SlouchCount  uint64    // 只增不减，每次确认进入 Slouching 加一
}

// HasPending 是否正在计时等待确认
func (p PostureState) HasPending() bool {
	return !p.PendingSince.IsZero()
}

// Transition 一次评估的结果
type Transition struct {
	From             State
	To               State
	At               time.Time
	CountIncremented bool
}

// Changed 本次评估是否发生了状态切换
func (t Transition) Changed() bool {
	return t.From != t.To
}

// Stats 会话统计（不发布，只用于日志）
type Stats struct {
	SlouchCount       uint64
	SlouchTime        time.Duration // 已结束的驼背片段总时长（从进入 pending 算起）
	CurrentGoodStreak time.Duration
	BestGoodStreak    time.Duration
}

// Snapshot 一次完整流水线处理后的只读视图，供 publish gate 使用
type Snapshot struct {
	Angle      SmoothedAngle
	Posture    PostureState
	Transition Transition
}
