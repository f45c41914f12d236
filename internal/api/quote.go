package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/rickgao/quote-producer/internal/model"
)

// ErrNoQuote is returned when the upstream has no usable price for a symbol.
var ErrNoQuote = errors.New("no quote available")

// Quote is the response body of GET /quote.
type Quote struct {
	Symbol string `json:"symbol"`
	Price  Price  `json:"price"`
}

// Price decodes from either a JSON number or a quoted decimal string.
type Price float64

// UnmarshalJSON implements json.Unmarshaler.
func (p *Price) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*p = 0
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", s, err)
	}
	*p = Price(f)
	return nil
}

// GetQuote fetches the latest quote for a symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	query := url.Values{}
	query.Set("symbol", symbol)

	var q Quote
	if err := c.get(ctx, "/quote", query, &q); err != nil {
		return nil, err
	}
	return &q, nil
}

// Fetch retrieves the latest quote for key and converts it into a Record
// observed at the current minute.
func (c *Client) Fetch(ctx context.Context, key string) (model.Record, error) {
	q, err := c.GetQuote(ctx, key)
	if err != nil {
		return model.Record{}, fmt.Errorf("fetch %s: %w", key, err)
	}

	price := float64(q.Price)
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return model.Record{}, fmt.Errorf("fetch %s: %w", key, ErrNoQuote)
	}

	return model.NewRecord(key, price, c.now()), nil
}
