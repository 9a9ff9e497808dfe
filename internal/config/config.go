package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file failed (%s): %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults()
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.App.HTTPAddr == "" {
		c.App.HTTPAddr = ":9980"
	}
	if c.App.DataDir == "" {
		c.App.DataDir = "data/candles"
	}
	if c.App.ResultsPath == "" {
		c.App.ResultsPath = "data/results.db"
	}
	if c.Data.PageLimit <= 0 {
		c.Data.PageLimit = 1000
	}
	if c.Data.PageDelayMS <= 0 {
		c.Data.PageDelayMS = 100
	}
	if c.Data.HTTPTimeoutSeconds <= 0 {
		c.Data.HTTPTimeoutSeconds = 15
	}
	if c.Replay.Market == "" {
		c.Replay.Market = "crypto"
	}
	if c.Replay.Interval == "" {
		if c.Replay.Market == "equity" {
			c.Replay.Interval = "1d"
		} else {
			c.Replay.Interval = "1m"
		}
	}
	if c.Replay.Lookback <= 0 {
		c.Replay.Lookback = 50
	}
	if c.Replay.CycleMS <= 0 {
		if c.Replay.Interval == "1d" {
			c.Replay.CycleMS = 24 * 60 * 60 * 1000
		} else {
			c.Replay.CycleMS = 60 * 1000
		}
	}
}
