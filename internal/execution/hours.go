package execution

import (
	"time"
)

// Calendar 美股常规交易时段：周一至周五 09:30–16:00（America/New_York）。
// 不含节假日与半日市。
type Calendar struct {
	loc *time.Location
	now func() time.Time
}

// NewCalendar 构造交易日历；now 为空时使用墙钟（回测场景注入模拟时刻）。
func NewCalendar(now func() time.Time) (*Calendar, error) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Calendar{loc: loc, now: now}, nil
}

// IsOpenAt 判断给定时刻是否处于常规交易时段。收盘时刻 16:00:00 本身算开市，
// 之后（含 16:00 内的任何非零秒）算休市。
func (c *Calendar) IsOpenAt(t time.Time) bool {
	local := t.In(c.loc)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	seconds := local.Hour()*3600 + local.Minute()*60 + local.Second()
	open := (9*60 + 30) * 60
	close := 16 * 3600
	return seconds >= open && seconds <= close
}

// IsOpen 以注入的时钟判断当前是否开市。
func (c *Calendar) IsOpen() bool {
	return c.IsOpenAt(c.now())
}
