package enricher

/*
* https://www.DIVD.nl
* released under the Apache 2.0 license
* https://www.apache.org/licenses/LICENSE-2.0
 */

import (
	"time"

	"github.com/DIVD-NL/onyphe-enrich/pkg/onyphe"

	"github.com/sirupsen/logrus"
)

// isFresh reports whether a record's timestamp falls within the
// configured age window. With limitDays <= 0 the filter is disabled and
// everything is fresh. Records without a parsable timestamp fail closed.
func isFresh(rec onyphe.Record, limitDays int, now time.Time) bool {
	if limitDays <= 0 {
		return true
	}

	if rec.Timestamp == "" {
		logrus.Debug("enricher: record doesn't have timestamp defined")
		return false
	}

	ts, err := time.Parse(time.RFC3339, rec.Timestamp)
	if err != nil {
		logrus.Debugf("enricher: record has unparsable timestamp %q", rec.Timestamp)
		return false
	}

	cutoff := now.Add(-time.Duration(limitDays) * 24 * time.Hour)
	if ts.Before(cutoff) {
		logrus.Debug("enricher: record found but too old, skipping")
		return false
	}

	return true
}
