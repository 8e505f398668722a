package types

/*
* https://www.DIVD.nl
* released under the Apache 2.0 license
* https://www.apache.org/licenses/LICENSE-2.0
 */

// EventKind identifies the kind of finding an enrichment run produces.
// The set is closed: every kind emitted anywhere in this module is listed
// here, so consumers can switch over it exhaustively.
type EventKind string

const (
	// EventRawData carries the unprocessed page list of one category,
	// JSON-encoded, as an audit trail independent of filtering
	EventRawData EventKind = "RAW_RIR_DATA"
	// EventGeoInfo carries a "city, country" location string
	EventGeoInfo EventKind = "GEOINFO"
	// EventPhysicalCoordinates carries a "lat,lon" coordinates string
	EventPhysicalCoordinates EventKind = "PHYSICAL_COORDINATES"
	// EventInternetName carries a hostname that resolved (or was not verified)
	EventInternetName EventKind = "INTERNET_NAME"
	// EventInternetNameUnresolved carries a hostname that failed to resolve
	EventInternetNameUnresolved EventKind = "INTERNET_NAME_UNRESOLVED"
	// EventMaliciousIPAddr carries the name of a threat list the IP is on
	EventMaliciousIPAddr EventKind = "MALICIOUS_IPADDR"
	// EventLeakSiteContent carries leak site content mentioning the IP
	EventLeakSiteContent EventKind = "LEAKSITE_CONTENT"
	// EventVulnerability carries a comma-separated list of CVE identifiers
	EventVulnerability EventKind = "VULNERABILITY"
	// EventAbuseContact carries abuse e-mail addresses for the IP,
	// semicolon-separated if multiple
	EventAbuseContact EventKind = "ABUSE_CONTACT"
)

// EventKinds lists every kind this module can produce.
func EventKinds() []EventKind {
	return []EventKind{
		EventRawData,
		EventGeoInfo,
		EventPhysicalCoordinates,
		EventInternetName,
		EventInternetNameUnresolved,
		EventMaliciousIPAddr,
		EventLeakSiteContent,
		EventVulnerability,
		EventAbuseContact,
	}
}

// Event is the output unit of an enrichment run.
type Event struct {
	// Kind of finding, one of the EventKind constants
	Kind EventKind `json:"kind"`
	// Data is the finding payload (location string, hostname, CVE list, ...)
	Data string `json:"data"`
	// Module is the identity of the producing module
	Module string `json:"module"`
	// Parent is the causal parent event, nil for root events
	Parent *Event `json:"-"`
}

// SimpleIPRecord represents a basic IP record for simple IP list processing
type SimpleIPRecord struct {
	Ip string
}

// Report collects the events emitted for one enrichment target.
type Report struct {
	Ip     string  `json:"ip"`
	Events []Event `json:"events"`
}

// ReportMap maps IP addresses to their enrichment reports for output.
type ReportMap map[string]*Report
