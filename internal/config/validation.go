package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验，启动期失败优于运行期悬空。
func validate(c *Config) error {
	if err := c.Replay.validate(); err != nil {
		return err
	}
	if err := c.Execution.validate(); err != nil {
		return err
	}
	return nil
}

func (r *ReplayConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(r.Market)) {
	case "crypto", "equity":
	default:
		return fmt.Errorf("replay.market must be crypto or equity, got %q", r.Market)
	}
	if len(r.Symbols) == 0 {
		return fmt.Errorf("replay.symbols requires at least one symbol")
	}
	for _, s := range r.Symbols {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("replay.symbols contains empty entry")
		}
	}
	if r.StartTS <= 0 || r.EndTS <= 0 {
		return fmt.Errorf("replay.start_ts/end_ts are required")
	}
	if r.StartTS >= r.EndTS {
		return fmt.Errorf("replay.start_ts must be earlier than replay.end_ts")
	}
	return nil
}

func (e *ExecutionConfig) validate() error {
	if e.SlippageBps < 0 {
		return fmt.Errorf("execution.slippage_bps must be >= 0")
	}
	if e.FeeBps < 0 {
		return fmt.Errorf("execution.fee_bps must be >= 0")
	}
	if e.PerUnitFee < 0 {
		return fmt.Errorf("execution.per_unit_fee must be >= 0")
	}
	return nil
}
