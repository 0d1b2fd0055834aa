// Package policy decides whether a publication warrants an open-access
// email request. Evaluation is a pure rule cascade over one publication
// candidate and its author; it never returns an error.
package policy

import (
	"fmt"
	"strconv"
	"time"

	"github.com/libsys/oarequest/internal/feed"
	"github.com/libsys/oarequest/internal/record"
)

// EffectiveDate is the day the open-access policy was enacted. Only
// publications strictly after it are requested.
var EffectiveDate = time.Date(2009, time.March, 18, 0, 0, 0, 0, time.UTC)

// eligibleTypes are the publication type codes subject to the policy:
// journal article (3), book chapter (4), conference proceeding (5).
var eligibleTypes = map[string]bool{"3": true, "4": true, "5": true}

// Decision is the outcome of evaluating one candidate.
type Decision struct {
	Eligible bool
	Reason   string
}

func reject(format string, args ...any) Decision {
	return Decision{Reason: fmt.Sprintf(format, args...)}
}

// Evaluate runs the rule cascade in order; the first failing rule decides.
// A candidate with no extractable publication year skips the date rules
// rather than failing them: an undated publication is provisionally in
// scope and only the later rules can reject it.
func Evaluate(c *feed.Candidate, a *record.Author) Decision {
	if date, ok := PublicationDate(c.Year, c.Month, c.Day); ok {
		if !date.After(EffectiveDate) {
			return reject("published %s, on or before policy effective date", date.Format("2006-01-02"))
		}
		if date.Before(a.StartDate) || date.After(a.EndDate) {
			return reject("published %s, outside author affiliation window", date.Format("2006-01-02"))
		}
	}
	if c.LibraryStatus != "" {
		return reject("library status %q set", c.LibraryStatus)
	}
	if !eligibleTypes[c.TypeID] {
		return reject("publication type %q not requestable", c.TypeID)
	}
	if len(c.Exceptions) > 0 && !contains(c.Exceptions, "Waiver") {
		return reject("OA policy exceptions %v without waiver", c.Exceptions)
	}
	if contains(c.SourceNames, "manual") {
		for _, f := range []struct{ name, value string }{
			{"do-not-request", c.DoNotRequest},
			{"optout", c.OptOut},
			{"received", c.Received},
			{"requested", c.Requested},
		} {
			if f.value == "true" {
				return reject("manual record flag %s is true", f.name)
			}
		}
	}
	if contains(c.SourceNames, "dspace") {
		if c.RepositoryStatus == "Public" || c.RepositoryStatus == "Private" {
			return reject("already deposited in repository (status %s)", c.RepositoryStatus)
		}
	}
	return Decision{Eligible: true, Reason: "eligible"}
}

// PublicationDate derives a publication date from the raw feed parts.
// The year is mandatory: when it cannot be parsed, ok is false and the date
// is unknown. Month and day default to 1 when absent or unparsable, and an
// out-of-range combination falls back to January 1 of the year rather than
// failing.
func PublicationDate(year, month, day string) (time.Time, bool) {
	y, err := strconv.Atoi(year)
	if err != nil {
		return time.Time{}, false
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		m = 1
	}
	d, err := strconv.Atoi(day)
	if err != nil {
		d = 1
	}
	date := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if date.Year() != y || date.Month() != time.Month(m) || date.Day() != d {
		// time.Date normalizes out-of-range parts instead of failing.
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC), true
	}
	return date, true
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
