package enricher

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/DIVD-NL/onyphe-enrich/pkg/ipinfo"
	"github.com/DIVD-NL/onyphe-enrich/pkg/onyphe"
	"github.com/DIVD-NL/onyphe-enrich/pkg/types"
)

// Using a simpler regex pattern for email extraction
// This pattern is less complex but still effective for most cases
// and much less vulnerable to ReDoS attacks
var whoisRegexp = regexp.MustCompile("[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\\.[a-zA-Z]{2,}")

const (
	// ModuleName identifies this module as the producer on emitted events
	ModuleName = "onyphe-enrich"
)

// Config holds the enrichment options with explicit defaults.
type Config struct {
	// APIKey is the Onyphe access token
	APIKey string
	// BaseURL overrides the Onyphe API base URL, empty = production API
	BaseURL string
	// PaidPlan enables pagination; only paid plans have it
	PaidPlan bool
	// MaxPage caps how many pages are fetched per category
	MaxPage int
	// VerifyDomains controls whether discovered hostnames are checked to
	// still resolve before being reported
	VerifyDomains bool
	// AgeLimitDays ignores records older than this many days, 0 = unlimited
	AgeLimitDays int
	// LookupAbuse enables the whois abuse-contact lookup per target
	LookupAbuse bool
	// RateLimit is the maximum number of API requests per second
	RateLimit int
}

// DefaultConfig returns the default enrichment options.
func DefaultConfig() Config {
	return Config{
		PaidPlan:      false,
		MaxPage:       onyphe.DefaultMaxPage,
		VerifyDomains: true,
		AgeLimitDays:  30,
		LookupAbuse:   false,
		RateLimit:     onyphe.DefaultRateLimit,
	}
}

// Sink receives emitted events. Emission is fire-and-forget: the
// enricher never inspects the outcome.
type Sink interface {
	Emit(ev types.Event)
}

// Resolver checks that a hostname still resolves.
type Resolver interface {
	Resolve(ctx context.Context, hostname string) bool
}

// Enricher runs Onyphe enrichment for one IP address at a time. Its
// processed-set and error-state persist for the lifetime of the
// instance; once the error state latches, every further HandleIP call
// is a no-op.
type Enricher struct {
	cfg          Config
	client       *onyphe.Client
	ipinfoClient *ipinfo.Client
	resolver     Resolver
	sink         Sink
	now          func() time.Time

	mu         sync.Mutex
	processed  map[string]bool
	errorState bool
}
