package publish

import (
	"math"
	"strconv"
	"time"

	"github.com/aryaprasad08/slouch/internal/posture"
)

// Feed 名称（大小写敏感，与云端 feed key 一致）
const (
	FeedAngle  = "posture-angle"
	FeedStatus = "posture-status"
	FeedCount  = "slouch-count"
)

// Channel 单个输出通道的发送抑制状态
//
// 只有在传输层确认成功后才会提交 LastSentValue / LastSentTime；
// 发送失败时基线保持不变，下一次评估仍以最后一次成功送达的值为基准。
type Channel struct {
	Feed        string
	MinInterval time.Duration
	MinDelta    float64

	LastSentValue float64
	LastSentTime  time.Time
	HasSent       bool

	format func(float64) string
}

// Due 判断当前值是否值得发送：距上次成功发送 >= MinInterval 且变化量 >= MinDelta
// 从未成功发送过的通道只受时间条件约束（此时时间条件总是满足）
func (c *Channel) Due(value float64, now time.Time) bool {
	if !c.HasSent {
		return true
	}
	if now.Sub(c.LastSentTime) < c.MinInterval {
		return false
	}
	return math.Abs(value-c.LastSentValue) >= c.MinDelta
}

// Commit 记录一次成功发送
func (c *Channel) Commit(value float64, now time.Time) {
	c.LastSentValue = value
	c.LastSentTime = now
	c.HasSent = true
}

// Format 将数值格式化为 feed 写入值
func (c *Channel) Format(value float64) string {
	return c.format(value)
}

// NewAngleChannel 倾角通道：时间间隔与变化量同时满足才发送，保留一位小数
func NewAngleChannel(interval time.Duration, delta float64) *Channel {
	return &Channel{
		Feed:        FeedAngle,
		MinInterval: interval,
		MinDelta:    delta,
		format: func(v float64) string {
			return strconv.FormatFloat(math.Round(v*10)/10, 'f', 1, 64)
		},
	}
}

// NewStatusChannel 状态通道：只在状态与最后一次成功送达的状态不同时发送，不受时间限制
// 基线为开机状态 Good，因此开机本身不产生发送
func NewStatusChannel() *Channel {
	return &Channel{
		Feed:          FeedStatus,
		MinDelta:      1,
		LastSentValue: float64(posture.Good),
		HasSent:       true,
		format: func(v float64) string {
			return posture.State(int(v)).String()
		},
	}
}

// NewCountChannel 计数通道：只在 slouch_count 比最后一次成功送达的值大时发送
func NewCountChannel() *Channel {
	return &Channel{
		Feed:     FeedCount,
		MinDelta: 1,
		HasSent:  true,
		format: func(v float64) string {
			return strconv.FormatUint(uint64(v), 10)
		},
	}
}
