package market

// InstrumentRef 唯一标识一个可交易标的（symbol + 交易所/场所 ID）。
type InstrumentRef struct {
	Symbol string `json:"symbol"`
	Venue  string `json:"venue"`
}

// Candle 单根 K 线（毫秒时间戳，同一序列内按 TS 升序）。
type Candle struct {
	TS         int64         `json:"ts"`
	Instrument InstrumentRef `json:"instrument"`
	Interval   string        `json:"interval"`
	Open       float64       `json:"open"`
	High       float64       `json:"high"`
	Low        float64       `json:"low"`
	Close      float64       `json:"close"`
	Volume     float64       `json:"volume"`
}

// PriceRecord 某标的在某一时刻的最新已知价格视图。
type PriceRecord struct {
	Symbol    string  `json:"symbol"`
	Timestamp int64   `json:"timestamp"`
	Last      float64 `json:"last"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// Snapshot symbol -> 最新价格记录；无数据的 symbol 不出现在映射中。
type Snapshot map[string]PriceRecord

// RecordFromCandle 以收盘价作为 last 构造价格记录。
func RecordFromCandle(c Candle) PriceRecord {
	return PriceRecord{
		Symbol:    c.Instrument.Symbol,
		Timestamp: c.TS,
		Last:      c.Close,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
	}
}
