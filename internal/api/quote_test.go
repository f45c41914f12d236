package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestPriceUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    Price
		wantErr bool
	}{
		{name: "number", body: `{"price": 135.5}`, want: 135.5},
		{name: "string", body: `{"price": "135.50"}`, want: 135.5},
		{name: "null", body: `{"price": null}`, want: 0},
		{name: "empty string", body: `{"price": ""}`, want: 0},
		{name: "missing", body: `{}`, want: 0},
		{name: "garbage", body: `{"price": "n/a"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q Quote
			err := json.Unmarshal([]byte(tt.body), &q)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if q.Price != tt.want {
				t.Errorf("Price = %v, want %v", q.Price, tt.want)
			}
		})
	}
}

func TestGetQuote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote" {
			t.Errorf("path = %q, want %q", r.URL.Path, "/quote")
		}
		if got := r.URL.Query().Get("symbol"); got != "AAPL" {
			t.Errorf("symbol = %q, want %q", got, "AAPL")
		}
		w.Write([]byte(`{"symbol": "AAPL", "price": "189.25"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "")
	q, err := c.GetQuote(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("GetQuote() error = %v", err)
	}
	if q.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want %q", q.Symbol, "AAPL")
	}
	if q.Price != 189.25 {
		t.Errorf("Price = %v, want 189.25", q.Price)
	}
}

func TestFetch(t *testing.T) {
	t.Run("builds record", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"symbol": "MSFT", "price": 412.1}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		c.now = func() time.Time { return time.Date(2024, 3, 1, 14, 30, 45, 0, time.FixedZone("EST", -5*3600)) }

		rec, err := c.Fetch(context.Background(), "MSFT")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if rec.Key != "MSFT" {
			t.Errorf("Key = %q, want %q", rec.Key, "MSFT")
		}
		if rec.Price != 412.1 {
			t.Errorf("Price = %v, want 412.1", rec.Price)
		}
		want := time.Date(2024, 3, 1, 19, 30, 0, 0, time.UTC)
		if !rec.ObservedAt.Equal(want) {
			t.Errorf("ObservedAt = %v, want %v", rec.ObservedAt, want)
		}
	})

	t.Run("zero price is no quote", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"symbol": "ZZZZ", "price": null}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		_, err := c.Fetch(context.Background(), "ZZZZ")
		if !errors.Is(err, ErrNoQuote) {
			t.Errorf("Fetch() error = %v, want ErrNoQuote", err)
		}
	})

	t.Run("api error is wrapped with key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(0, time.Millisecond))
		_, err := c.Fetch(context.Background(), "NOPE")

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("Fetch() error = %v, want *APIError", err)
		}
		if got, want := err.Error(), "fetch NOPE: quote api error 404: Not Found"; got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	})
}
