// Package acquire pulls data from outside services: satellite and
// transponder lists from the public listing sites, picon packages, and
// YouTube stream URLs.
package acquire

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/demon-editor/core/internal/log"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36"

// Fetcher is the shared HTTP front for all scrapers. Requests are
// rate-limited so the listing sites are not hammered during a full
// satellite import.
type Fetcher struct {
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

// NewFetcher builds a fetcher; rps bounds outgoing requests per
// second.
func NewFetcher(rps float64) *Fetcher {
	if rps <= 0 {
		rps = 2
	}
	return &Fetcher{
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		log:     log.WithComponent("acquire"),
	}
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	res, err := f.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("acquire: GET %s: HTTP %d", url, res.StatusCode)
	}
	return io.ReadAll(res.Body)
}

// ItemError records a single failed item in a batch that carried on.
type ItemError struct {
	Item string
	Err  error
}

func (e ItemError) Error() string { return fmt.Sprintf("%s: %v", e.Item, e.Err) }

func (e ItemError) Unwrap() error { return e.Err }
