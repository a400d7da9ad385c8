package marketdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/OfekGrunfeld/O.G-s-Papertrading/internal/domain"
)

// Static serves fixed quotes keyed by upper-case symbol.
type Static map[string]domain.Quote

// NewStatic builds a Static source from quotes.
func NewStatic(quotes ...domain.Quote) Static {
	s := make(Static, len(quotes))
	for _, q := range quotes {
		s[strings.ToUpper(q.Symbol)] = q
	}
	return s
}

func (s Static) Quote(_ context.Context, symbol string) (domain.Quote, error) {
	q, ok := s[strings.ToUpper(symbol)]
	if !ok {
		return domain.Quote{}, fmt.Errorf("quote %s: %w", symbol, domain.ErrMarketDataUnavailable)
	}
	return q, nil
}
