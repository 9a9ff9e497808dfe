package config

// Config 是 backcast 的主配置载体。
type Config struct {
	App       AppConfig       `toml:"app"`
	Data      DataConfig      `toml:"data"`
	Replay    ReplayConfig    `toml:"replay"`
	Execution ExecutionConfig `toml:"execution"`
	Profiles  ProfilesConfig  `toml:"profiles"`
}

type AppConfig struct {
	Env         string `toml:"env"`
	LogLevel    string `toml:"log_level"`
	HTTPAddr    string `toml:"http_addr"`
	DataDir     string `toml:"data_dir"`
	ResultsPath string `toml:"results_path"`
}

// DataConfig 历史数据提供方参数。
type DataConfig struct {
	Venue              string `toml:"venue"`
	RESTBaseURL        string `toml:"rest_base_url"`
	YahooBaseURL       string `toml:"yahoo_base_url"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	ProxyEnabled       bool   `toml:"proxy_enabled"`
	RESTProxyURL       string `toml:"rest_proxy_url"`
	PageLimit          int    `toml:"page_limit"`
	PageDelayMS        int    `toml:"page_delay_ms"`
	MaxPages           int    `toml:"max_pages"`
}

// ReplayConfig 回放区间与节奏。时间戳均为毫秒。
type ReplayConfig struct {
	Market   string   `toml:"market"` // crypto / equity
	Profile  string   `toml:"profile"`
	Symbols  []string `toml:"symbols"`
	Interval string   `toml:"interval"`
	Lookback int      `toml:"lookback"`
	StartTS  int64    `toml:"start_ts"`
	EndTS    int64    `toml:"end_ts"`
	CycleMS  int64    `toml:"cycle_ms"`
}

// ExecutionConfig 模拟成交参数，基点计。
type ExecutionConfig struct {
	SlippageBps float64 `toml:"slippage_bps"`
	FeeBps      float64 `toml:"fee_bps"`
	PerUnitFee  float64 `toml:"per_unit_fee"`
}

type ProfilesConfig struct {
	Path string `toml:"path"`
}
