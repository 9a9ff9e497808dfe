package replay

// Clock 回放用模拟时钟：在 [startTS, endTS] 区间内单调推进的毫秒游标。
// 仅由周期驱动器在两次决策之间推进，不与读取并发。
type Clock struct {
	startTS   int64
	endTS     int64
	currentTS int64
}

func NewClock(startTS, endTS int64) *Clock {
	return &Clock{startTS: startTS, endTS: endTS, currentTS: startTS}
}

// Advance 推进 deltaMS 毫秒；允许越过 endTS（此后 IsFinished 返回 true）。
func (c *Clock) Advance(deltaMS int64) {
	c.currentTS += deltaMS
}

// Reset 回到起点。
func (c *Clock) Reset() {
	c.currentTS = c.startTS
}

func (c *Clock) CurrentTS() int64 {
	return c.currentTS
}

func (c *Clock) StartTS() int64 {
	return c.startTS
}

func (c *Clock) EndTS() int64 {
	return c.endTS
}

// IsFinished 当 currentTS >= endTS 时回放结束。
func (c *Clock) IsFinished() bool {
	return c.currentTS >= c.endTS
}

// ProgressPct 返回 [0,100] 的进度；退化区间（end<=start）恒为 100。
func (c *Clock) ProgressPct() float64 {
	if c.endTS <= c.startTS {
		return 100.0
	}
	elapsed := float64(c.currentTS - c.startTS)
	total := float64(c.endTS - c.startTS)
	pct := elapsed / total * 100.0
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100.0
	}
	return pct
}
