package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSortByTS(t *testing.T) {
	cs := Candles{
		{TS: 3000}, {TS: 1000}, {TS: 2000},
	}
	assert.False(t, cs.Sorted())
	cs.SortByTS()
	assert.True(t, cs.Sorted())
	assert.Equal(t, int64(1000), cs[0].TS)
	assert.Equal(t, int64(3000), cs[2].TS)
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "1234.5", FormatPrice(1234.50))
	assert.Equal(t, "0.000123", FormatPrice(0.0001234567))
	assert.Equal(t, "-", FormatPrice(0/zero()))
}

func zero() float64 { return 0 }

func TestDescribe(t *testing.T) {
	cs := Candles{
		{TS: 1000, Open: 100, High: 105, Low: 98, Close: 100},
		{TS: 2000, Open: 100, High: 112, Low: 99, Close: 110},
	}
	text := cs.Describe("1m")
	assert.Contains(t, text, "close≈110")
	assert.Contains(t, text, "+10.00%/1m")
	assert.Contains(t, text, "98")
	assert.Contains(t, text, "112")

	assert.Empty(t, Candles{}.Describe("1m"))
}

func TestRecordFromCandle(t *testing.T) {
	c := Candle{
		TS:         5000,
		Instrument: InstrumentRef{Symbol: "BTC/USDT:USDT", Venue: "binance"},
		Open:       1, High: 3, Low: 0.5, Close: 2, Volume: 9,
	}
	rec := RecordFromCandle(c)
	assert.Equal(t, "BTC/USDT:USDT", rec.Symbol)
	assert.Equal(t, int64(5000), rec.Timestamp)
	assert.Equal(t, 2.0, rec.Last)
	assert.Equal(t, 9.0, rec.Volume)
}
