package enricher

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
	"net/mail"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/DIVD-NL/onyphe-enrich/pkg/ipinfo"
	"github.com/DIVD-NL/onyphe-enrich/pkg/onyphe"
	"github.com/DIVD-NL/onyphe-enrich/pkg/types"

	"github.com/likexian/whois"
	"github.com/sirupsen/logrus"
)

// Constants for error and log messages
const (
	errWhoisEmpty    = "enricher: whoisAbuseEmails - whois info is empty for %s"
	errNoAbuseEmails = "enricher: whoisAbuseEmails - could not find any abuse emails for %s"
	logNoAPIKey      = "enricher: HandleIP - Onyphe enrichment enabled, but no API key is configured"
	logQueryFailed   = "enricher: %s query failed for %s: %v"
	logStopRequested = "enricher: HandleIP - stop requested, aborting enrichment of %s"
)

// NewEnricher creates a new Enricher instance.
// It initializes the Onyphe client and optionally the IPInfo fallback
// client if an API token is available in the environment.
func NewEnricher(cfg Config, sink Sink) *Enricher {
	client := onyphe.NewClient(cfg.APIKey)
	client.PaidPlan = cfg.PaidPlan
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	if cfg.MaxPage > 0 {
		client.MaxPage = cfg.MaxPage
	}
	client.SetRateLimit(cfg.RateLimit)

	var ipinfoClient *ipinfo.Client
	if token := os.Getenv("IPINFO_TOKEN"); token != "" {
		ipinfoClient = ipinfo.NewIpInfoClient(3, token)
	}

	return &Enricher{
		cfg:          cfg,
		client:       client,
		ipinfoClient: ipinfoClient,
		resolver:     netResolver{},
		sink:         sink,
		now:          time.Now,
		processed:    make(map[string]bool),
	}
}

// latch permanently disables further processing on this instance.
func (e *Enricher) latch() {
	e.mu.Lock()
	e.errorState = true
	e.mu.Unlock()
}

// IsLatched reports whether the instance has hit a fatal API condition.
func (e *Enricher) IsLatched() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorState
}

// tryClaim atomically marks ip as processed and reports whether this
// call was the first to do so.
func (e *Enricher) tryClaim(ip string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.processed[ip] {
		return false
	}
	e.processed[ip] = true
	return true
}

// HandleIP enriches one IP address: it queries the four Onyphe
// categories in fixed order and emits typed events through the sink.
// Each IP is processed at most once per instance; failures are logged
// and never propagated to the caller.
func (e *Enricher) HandleIP(ctx context.Context, ip string, parent *types.Event) {
	if e.IsLatched() {
		return
	}

	if e.cfg.APIKey == "" {
		logrus.Error(logNoAPIKey)
		e.latch()
		return
	}

	// Don't look up stuff twice
	if !e.tryClaim(ip) {
		logrus.Debugf("enricher: HandleIP - skipping %s, already processed", ip)
		return
	}

	sent := newSentSet()

	for _, category := range onyphe.Categories() {
		if ctx.Err() != nil {
			logrus.Debugf(logStopRequested, ip)
			return
		}
		if stopped := e.processCategory(ctx, category, ip, parent, sent); stopped {
			logrus.Debugf(logStopRequested, ip)
			return
		}
	}

	if e.cfg.LookupAbuse && ctx.Err() == nil {
		e.emitAbuseContacts(ip, parent, sent)
	}
}

// processCategory fetches one category for ip, emits the raw page
// snapshot and the per-record events. It reports true when a stop was
// requested; fetch failures latch the error state but still let the
// remaining categories of the same call run.
func (e *Enricher) processCategory(ctx context.Context, category, ip string, parent *types.Event, sent *sentSet) bool {
	pages, err := e.client.Fetch(ctx, category, ip)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		logrus.Errorf(logQueryFailed, category, ip, err)
		e.latch()
		return false
	}

	if len(pages) == 0 {
		if category == onyphe.CategoryGeoloc {
			e.fallbackGeo(ip, parent, sent)
		}
		return false
	}

	// Raw audit trail, independent of filtering and dedup
	if raw, err := json.Marshal(pages); err == nil {
		e.emit(types.EventRawData, string(raw), parent)
	}

	for _, page := range pages {
		for _, rec := range page.Results {
			if ctx.Err() != nil {
				return true
			}
			switch category {
			case onyphe.CategoryGeoloc:
				e.processGeolocRecord(ctx, rec, ip, parent, sent)
			case onyphe.CategoryPastries:
				e.processPastryRecord(rec, parent, sent)
			case onyphe.CategoryThreatlist:
				e.processThreatlistRecord(rec, parent, sent)
			case onyphe.CategoryVulnscan:
				e.processVulnscanRecord(rec, parent, sent)
			}
		}
	}
	return false
}

// processGeolocRecord emits the location string, the physical
// coordinates and the domain data of one geolocation record.
func (e *Enricher) processGeolocRecord(ctx context.Context, rec onyphe.Record, ip string, parent *types.Event, sent *sentSet) {
	if !isFresh(rec, e.cfg.AgeLimitDays, e.now()) {
		return
	}

	location := joinLocation(rec.City, rec.Country)
	logrus.Infof("enricher: found GeoIP for %s: %s", ip, location)

	if sent.claim(location) {
		e.emit(types.EventGeoInfo, location, parent)
	} else {
		logrus.Debugf("enricher: skipping %s, already sent", location)
	}

	if rec.Location != "" && sent.claim(rec.Location) {
		logrus.Infof("enricher: found location for %s: %s", ip, rec.Location)
		e.emit(types.EventPhysicalCoordinates, rec.Location, parent)
	}

	// Hostnames are reported per record occurrence, outside the dedup set
	e.emitDomainData(ctx, rec, ip, parent)
}

func (e *Enricher) processPastryRecord(rec onyphe.Record, parent *types.Event, sent *sentSet) {
	if rec.Content == "" {
		return
	}
	if !isFresh(rec, e.cfg.AgeLimitDays, e.now()) {
		return
	}
	if !sent.claim(rec.Content) {
		logrus.Debug("enricher: skipping paste, already sent")
		return
	}
	e.emit(types.EventLeakSiteContent, rec.Content, parent)
}

func (e *Enricher) processThreatlistRecord(rec onyphe.Record, parent *types.Event, sent *sentSet) {
	if rec.Threatlist == "" {
		return
	}
	if !isFresh(rec, e.cfg.AgeLimitDays, e.now()) {
		return
	}
	if !sent.claim(rec.Threatlist) {
		logrus.Debugf("enricher: skipping %s, already sent", rec.Threatlist)
		return
	}
	e.emit(types.EventMaliciousIPAddr, rec.Threatlist, parent)
}

func (e *Enricher) processVulnscanRecord(rec onyphe.Record, parent *types.Event, sent *sentSet) {
	if len(rec.Cve) == 0 {
		return
	}

	cves := make([]string, 0, len(rec.Cve))
	for _, cve := range rec.Cve {
		if cve != "" {
			cves = append(cves, cve)
		}
	}
	cveData := strings.Join(cves, ", ")

	if !isFresh(rec, e.cfg.AgeLimitDays, e.now()) {
		return
	}
	if !sent.claim(cveData) {
		logrus.Debugf("enricher: skipping %s, already sent", cveData)
		return
	}
	e.emit(types.EventVulnerability, cveData, parent)
}

// emitDomainData reports every hostname attached to a geolocation
// record. With VerifyDomains enabled, hostnames that no longer resolve
// are reported as unresolved instead.
func (e *Enricher) emitDomainData(ctx context.Context, rec onyphe.Record, ip string, parent *types.Event) {
	domains := make(map[string]struct{})
	if rec.Domain != "" {
		domains[rec.Domain] = struct{}{}
	}
	for _, subdomain := range rec.Subdomains {
		if subdomain != "" {
			domains[subdomain] = struct{}{}
		}
	}

	for domain := range domains {
		if e.cfg.VerifyDomains && !e.resolver.Resolve(ctx, domain) {
			logrus.Debugf("enricher: host %s could not be resolved for %s", domain, ip)
			e.emit(types.EventInternetNameUnresolved, domain, parent)
		} else {
			e.emit(types.EventInternetName, domain, parent)
		}
	}
}

// fallbackGeo emits a location from IPInfo when the Onyphe geoloc
// category had no data and a fallback client is configured.
func (e *Enricher) fallbackGeo(ip string, parent *types.Event, sent *sentSet) {
	if e.ipinfoClient == nil {
		return
	}

	city, country, err := e.ipinfoClient.GetGeo(ip)
	if err != nil {
		logrus.Debugf("enricher: ipinfo fallback failed for %s: %v", ip, err)
		return
	}

	location := joinLocation(city, country)
	if location == "" || !sent.claim(location) {
		return
	}

	logrus.Infof("enricher: found GeoIP for %s via ipinfo: %s", ip, location)
	e.emit(types.EventGeoInfo, location, parent)
}

// emitAbuseContacts queries whois for the target IP and emits the
// abuse e-mail addresses found, semicolon-separated.
func (e *Enricher) emitAbuseContacts(ip string, parent *types.Event, sent *sentSet) {
	emails, err := whoisAbuseEmails(ip)
	if err != nil {
		logrus.Debugf("enricher: whois lookup failed for %s: %v", ip, err)
		return
	}

	contact := strings.Join(emails, ";")
	if contact == "" || !sent.claim(contact) {
		return
	}
	e.emit(types.EventAbuseContact, contact, parent)
}

// whoisAbuseEmails queries WHOIS for email addresses associated with an
// IP address and returns them unique, lowercase and sorted.
func whoisAbuseEmails(ip string) ([]string, error) {
	whoisInfo, err := whois.Whois(ip)
	if err != nil {
		return nil, err
	}
	if whoisInfo == "" {
		return nil, fmt.Errorf(errWhoisEmpty, ip)
	}

	found := whoisRegexp.FindAllString(whoisInfo, -1)
	if len(found) == 0 {
		return nil, fmt.Errorf(errNoAbuseEmails, ip)
	}

	return uniqueEmails(found), nil
}

// uniqueEmails validates, lowercases, dedupes and sorts email addresses.
func uniqueEmails(addresses []string) []string {
	unique := make(map[string]struct{}, len(addresses))
	for _, address := range addresses {
		email, err := mail.ParseAddress(address)
		if err != nil {
			logrus.Debugf("enricher: could not parse email address %q", address)
			continue
		}
		unique[strings.ToLower(email.Address)] = struct{}{}
	}

	emails := make([]string, 0, len(unique))
	for email := range unique {
		emails = append(emails, email)
	}
	sort.Strings(emails)
	return emails
}

// joinLocation joins city and country with ", ", omitting blank parts.
func joinLocation(city, country string) string {
	parts := make([]string, 0, 2)
	if city != "" {
		parts = append(parts, city)
	}
	if country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}

func (e *Enricher) emit(kind types.EventKind, data string, parent *types.Event) {
	e.sink.Emit(types.Event{
		Kind:   kind,
		Data:   data,
		Module: ModuleName,
		Parent: parent,
	})
}
