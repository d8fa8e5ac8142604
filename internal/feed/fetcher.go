// Package feed polls the external market for the latest prices and fans each
// snapshot out to the sessions.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Tonic56/crypto-asset-tracker-microservice/Arena/internal/models"
	"github.com/shopspring/decimal"
)

type Fetcher interface {
	FetchPrices(ctx context.Context, symbols []string) ([]models.PriceQuote, error)
}

// HTTPFetcher reads a Binance-compatible /api/v3/ticker/price endpoint.
type HTTPFetcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type tickerPrice struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

func (f *HTTPFetcher) FetchPrices(ctx context.Context, symbols []string) ([]models.PriceQuote, error) {
	const op = "feed.HTTPFetcher.FetchPrices"

	if len(symbols) == 0 {
		return nil, nil
	}

	list, err := json.Marshal(symbols)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	q := url.Values{}
	q.Set("symbols", string(list))
	endpoint := f.baseURL + "/api/v3/ticker/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
	}

	var tickers []tickerPrice
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	quotes := make([]models.PriceQuote, 0, len(tickers))
	for _, t := range tickers {
		if t.Symbol == "" || !t.Price.IsPositive() {
			continue
		}
		quotes = append(quotes, models.PriceQuote{Symbol: t.Symbol, Price: t.Price})
	}
	return quotes, nil
}
