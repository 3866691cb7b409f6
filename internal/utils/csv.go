package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"cryptoPilot/internal/domain"
)

// WriteCandlesToCSV dumps candles to a CSV file for offline analysis.
func WriteCandlesToCSV(candles []*domain.Candle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume", "quote_volume", "trade_count"})

	for _, c := range candles {
		writer.Write([]string{
			c.OpenTime.UTC().Format(time.RFC3339),
			c.CloseTime.UTC().Format(time.RFC3339),
			c.Symbol,
			c.Interval,
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
			strconv.FormatFloat(c.QuoteVol, 'f', -1, 64),
			strconv.FormatInt(c.TradeCount, 10),
		})
	}
	return writer.Error()
}
