package model

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ObservedAtLayout is the wire layout for Record.ObservedAt (UTC, minute precision).
const ObservedAtLayout = "2006-01-02T15:04Z"

// Record is one quote observation for a key.
type Record struct {
	Key        string    // Canonical stock symbol
	Price      float64   // Last trade price
	ObservedAt time.Time // UTC, truncated to the minute
}

// NewRecord builds a Record with ObservedAt normalised to UTC minute precision.
func NewRecord(key string, price float64, observedAt time.Time) Record {
	return Record{
		Key:        key,
		Price:      price,
		ObservedAt: observedAt.UTC().Truncate(time.Minute),
	}
}

// recordWire is the outbound payload handed to the broker.
type recordWire struct {
	StockSymbol       string  `json:"StockSymbol"`
	LastTradePrice    float64 `json:"LastTradePrice"`
	LastTradeDateTime string  `json:"LastTradeDateTime"`
}

// Encode marshals the record into its wire form.
func (r Record) Encode() ([]byte, error) {
	if r.Key == "" {
		return nil, fmt.Errorf("encode record: empty key")
	}
	return json.Marshal(recordWire{
		StockSymbol:       r.Key,
		LastTradePrice:    r.Price,
		LastTradeDateTime: r.ObservedAt.UTC().Format(ObservedAtLayout),
	})
}

// DecodeRecord parses a wire payload back into a Record.
func DecodeRecord(data []byte) (Record, error) {
	var w recordWire
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	ts, err := time.Parse(ObservedAtLayout, w.LastTradeDateTime)
	if err != nil {
		return Record{}, fmt.Errorf("decode record timestamp: %w", err)
	}
	return Record{
		Key:        w.StockSymbol,
		Price:      w.LastTradePrice,
		ObservedAt: ts.UTC(),
	}, nil
}
