package onyphe

/*
* https://www.DIVD.nl
* released under the Apache 2.0 license
* https://www.apache.org/licenses/LICENSE-2.0
 */

import (
	"fmt"
	"strconv"
	"strings"
)

// PageNumber is a custom type that can handle both string and integer
// page values in API responses
type PageNumber int

// UnmarshalJSON accepts a JSON number, a numeric string, or null.
func (p *PageNumber) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*p = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if s == "" {
		*p = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("unexpected value for page number: %q", s)
	}
	*p = PageNumber(n)
	return nil
}

// Int returns the page number as a plain int.
func (p PageNumber) Int() int {
	return int(p)
}

// Record is a single enrichment result within a Page. Fields vary by
// category; every field is optional on the wire.
type Record struct {
	// Timestamp is the record's ISO-8601 timestamp, used for freshness filtering
	Timestamp string `json:"@timestamp,omitempty"`

	// geoloc fields
	City       string   `json:"city,omitempty"`
	Country    string   `json:"country,omitempty"`
	Location   string   `json:"location,omitempty"`
	Domain     string   `json:"domain,omitempty"`
	Subdomains []string `json:"subdomains,omitempty"`

	// pastries fields
	Content string `json:"content,omitempty"`

	// threatlist fields
	Threatlist string `json:"threatlist,omitempty"`

	// vulnscan fields
	Cve []string `json:"cve,omitempty"`
}

// Page is one response unit from the Onyphe API. All fields except
// Results are optional on the wire; an absent or empty Results list
// signals "no data", not an error.
type Page struct {
	Status  string     `json:"status,omitempty"`
	Text    string     `json:"text,omitempty"`
	Page    PageNumber `json:"page,omitempty"`
	MaxPage PageNumber `json:"max_page,omitempty"`
	Results []Record   `json:"results"`
}
