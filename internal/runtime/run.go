package runtime

import (
	"encoding/json"
	"time"

	"backcast/internal/execution"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig 记录本次回放的参数快照，便于重放。
type RunConfig struct {
	Profile     string   `json:"profile"`
	Market      string   `json:"market"` // crypto / equity
	Symbols     []string `json:"symbols"`
	Interval    string   `json:"interval"`
	Lookback    int      `json:"lookback"`
	StartTS     int64    `json:"start_ts"`
	EndTS       int64    `json:"end_ts"`
	CycleMS     int64    `json:"cycle_ms"`
	SlippageBps float64  `json:"slippage_bps"`
	FeeBps      float64  `json:"fee_bps"`
	PerUnitFee  float64  `json:"per_unit_fee"`
	Notes       string   `json:"notes,omitempty"`
}

// RunStats 汇总执行概况，供前端展示。
type RunStats struct {
	Cycles       int            `json:"cycles"`
	Instructions int            `json:"instructions"`
	Fills        int            `json:"fills"`
	Rejections   int            `json:"rejections"`
	RejectReason map[string]int `json:"reject_reasons,omitempty"`
	Turnover     float64        `json:"turnover"`
	Fees         float64        `json:"fees"`
	PlanErrors   int            `json:"plan_errors"`
	FinishedAt   time.Time      `json:"finished_at"`
}

// Run 表示一次回放任务。
type Run struct {
	ID          string    `json:"id"`
	Profile     string    `json:"profile"`
	Status      string    `json:"status"`
	StartTS     int64     `json:"start_ts"`
	EndTS       int64     `json:"end_ts"`
	ProgressPct float64   `json:"progress_pct"`
	Message     string    `json:"message"`
	Config      RunConfig `json:"config"`
	Stats       RunStats  `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// MarshalStats 返回 stats JSON。
func (r Run) MarshalStats() ([]byte, error) {
	return json.Marshal(r.Stats)
}

// MarshalConfig 返回 config JSON。
func (r Run) MarshalConfig() ([]byte, error) {
	return json.Marshal(r.Config)
}

// Fill 一笔已落盘的执行结果。
type Fill struct {
	ID     int64              `json:"id"`
	RunID  string             `json:"run_id"`
	Result execution.TxResult `json:"result"`
}

func (s *RunStats) observe(res execution.TxResult) {
	s.Instructions++
	if res.Filled() {
		s.Fills++
		s.Turnover += res.Notional
		s.Fees += res.Fee
		return
	}
	s.Rejections++
	if res.Reason != "" {
		if s.RejectReason == nil {
			s.RejectReason = make(map[string]int)
		}
		s.RejectReason[res.Reason]++
	}
}
