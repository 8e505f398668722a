package onyphe

/*
* https://www.DIVD.nl
* released under the Apache 2.0 license
* https://www.apache.org/licenses/LICENSE-2.0
 */

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Sentinel errors for the fetch failure taxonomy. Callers latch their
// error state on any of these; a failing call returns no pages.
var (
	// ErrRateLimited is returned on an HTTP 429 response
	ErrRateLimited = errors.New("onyphe: API rate limit reached")
	// ErrInvalidRequest is returned on an HTTP 400 response
	ErrInvalidRequest = errors.New("onyphe: invalid request or API key")
	// ErrProvider is returned for an unparsable body, an explicit nok
	// status, or any other unexpected provider behavior
	ErrProvider = errors.New("onyphe: provider error")
)

// Client represents an Onyphe simple API client
type Client struct {
	// BaseURL is the base URL of the Onyphe simple API
	BaseURL string
	// HTTPClient is the HTTP client used for API requests
	HTTPClient *http.Client
	// APIKey is the Onyphe access token, sent as "apikey <key>"
	APIKey string
	// PaidPlan enables pagination; only paid plans have it
	PaidPlan bool
	// MaxPage caps how many pages are fetched per category
	MaxPage int
	limiter *rate.Limiter
}

// NewClient creates a new Onyphe API client with the given access token.
func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		APIKey:     apiKey,
		MaxPage:    DefaultMaxPage,
		limiter:    rate.NewLimiter(DefaultRateLimit, DefaultBurst),
	}
}

// SetRateLimit configures the client-side request rate in requests per second.
func (c *Client) SetRateLimit(requestsPerSecond int) {
	if requestsPerSecond <= 0 {
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), DefaultBurst)
}

// Fetch walks the given category endpoint for ip across pages and returns
// the pages in request order. Pagination only happens on paid plans and
// stops without error once the configured MaxPage cap would be exceeded.
// On ErrRateLimited, ErrInvalidRequest or ErrProvider no pages are
// returned, even if earlier pages were already fetched.
func (c *Client) Fetch(ctx context.Context, category, ip string) ([]Page, error) {
	if ip == "" {
		return nil, errors.New(ErrEmptyTarget)
	}

	var pages []Page
	for page := DefaultStartPage; ; {
		p, err := c.fetchPage(ctx, category, ip, page)
		if err != nil {
			return nil, err
		}

		if len(p.Results) == 0 {
			if len(pages) == 0 {
				logrus.Infof("onyphe: no %s data found for %s", category, ip)
				return nil, nil
			}
			return pages, nil
		}
		pages = append(pages, *p)

		if !c.PaidPlan || p.Page.Int() == 0 || p.MaxPage.Int() <= page {
			return pages, nil
		}

		// The declared page number is provider data; trusting it to
		// advance the loop would let a misbehaving provider make us
		// paginate forever. The requested page number is the counter.
		if p.Page.Int() != page {
			logrus.Errorf("onyphe: declared page %d does not match requested page %d for %s/%s, stopping pagination",
				p.Page.Int(), page, category, ip)
			return pages, nil
		}

		next := page + 1
		if next > c.MaxPage {
			logrus.Errorf("onyphe: maximum number of pages (%d) reached for %s/%s", c.MaxPage, category, ip)
			return pages, nil
		}
		page = next
	}
}

// fetchPage requests a single page of one category endpoint.
func (c *Client) fetchPage(ctx context.Context, category, ip string, page int) (*Page, error) {
	// Rate limit requests
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf(ErrRateLimitWait, err)
	}

	requestURL := fmt.Sprintf("%s/%s/%s?page=%d", c.BaseURL, category, url.PathEscape(ip), page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf(ErrCreateRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "apikey "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: "+ErrRequestFailed, ErrProvider, err)
	}
	defer func() {
		// Drain and close the body to ensure connection reuse
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusBadRequest:
		return nil, ErrInvalidRequest
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: "+ErrHTTPStatusCode, ErrProvider, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: "+ErrReadResponse, ErrProvider, err)
	}

	var p Page
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("%w: "+ErrParseResponse, ErrProvider, err)
	}

	if p.Status == "nok" {
		return nil, fmt.Errorf("%w: "+ErrNokStatus, ErrProvider, p.Text)
	}

	return &p, nil
}
