package onyphe

/*
* https://www.DIVD.nl
* released under the Apache 2.0 license
* https://www.apache.org/licenses/LICENSE-2.0
 */

const (
	// DefaultBaseURL is the default base URL for the Onyphe simple API
	DefaultBaseURL = "https://www.onyphe.io/api/v2/simple"
	// DefaultRateLimit defines the number of requests per second
	DefaultRateLimit = 3
	// DefaultBurst defines the maximum burst size for rate limiting
	DefaultBurst = 1
	// DefaultMaxPage caps how many pages are fetched per category.
	// Onyphe itself serves up to 1000 pages (10,000 results)
	DefaultMaxPage = 10
	// DefaultStartPage is where pagination begins
	DefaultStartPage = 1

	// CategoryGeoloc is the geolocation category endpoint
	CategoryGeoloc = "geoloc"
	// CategoryPastries is the pastebin-leaks category endpoint
	CategoryPastries = "pastries"
	// CategoryThreatlist is the threat-list category endpoint
	CategoryThreatlist = "threatlist"
	// CategoryVulnscan is the vulnerability-scan category endpoint
	CategoryVulnscan = "vulnscan"

	// Error messages
	ErrEmptyTarget    = "onyphe: empty target address"
	ErrRateLimitWait  = "rate limit error: %w"
	ErrCreateRequest  = "failed to create request: %w"
	ErrRequestFailed  = "request failed: %v"
	ErrReadResponse   = "error reading response body: %v"
	ErrParseResponse  = "failed to parse API response: %v"
	ErrHTTPStatusCode = "HTTP request failed with status code %d"
	ErrNokStatus      = "API returned nok status: %s"
)

// Categories returns the category endpoints in the order they are
// processed during one enrichment run.
func Categories() []string {
	return []string{CategoryGeoloc, CategoryPastries, CategoryThreatlist, CategoryVulnscan}
}
