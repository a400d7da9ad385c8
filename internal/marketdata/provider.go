// Package marketdata fetches stock quotes and caches them for settlement.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
)

// DefaultBaseURL is the public Yahoo Finance quote host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Source returns the current quote for a symbol.
type Source interface {
	Quote(ctx context.Context, symbol string) (domain.Quote, error)
}

// HTTPProvider implements Source against a Yahoo Finance style
// /v7/finance/quote endpoint.
type HTTPProvider struct {
	client  *http.Client
	baseURL string
}

// NewHTTPProvider returns a provider for baseURL whose requests give up
// after timeout.
func NewHTTPProvider(baseURL string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol             string  `json:"symbol"`
			Bid                float64 `json:"bid"`
			Ask                float64 `json:"ask"`
			RegularMarketPrice float64 `json:"regularMarketPrice"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

// Quote fetches the current quote for symbol. Every failure wraps
// domain.ErrMarketDataUnavailable.
func (p *HTTPProvider) Quote(ctx context.Context, symbol string) (domain.Quote, error) {
	u := fmt.Sprintf("%s/v7/finance/quote?symbols=%s", p.baseURL, url.QueryEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return domain.Quote{}, unavailable(symbol, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Quote{}, unavailable(symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, unavailable(symbol, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.Quote{}, unavailable(symbol, fmt.Errorf("decode: %w", err))
	}
	if e := body.QuoteResponse.Error; e != nil {
		return domain.Quote{}, unavailable(symbol, fmt.Errorf("%s: %s", e.Code, e.Description))
	}

	for _, r := range body.QuoteResponse.Result {
		if !strings.EqualFold(r.Symbol, symbol) {
			continue
		}
		return domain.Quote{
			Symbol:    strings.ToUpper(r.Symbol),
			Bid:       r.Bid,
			Ask:       r.Ask,
			Last:      r.RegularMarketPrice,
			FetchedAt: time.Now(),
		}, nil
	}
	return domain.Quote{}, unavailable(symbol, fmt.Errorf("no quote in response"))
}

func unavailable(symbol string, err error) error {
	return fmt.Errorf("quote %s: %w: %w", symbol, domain.ErrMarketDataUnavailable, err)
}
