// Package record builds validated, immutable author and publication records
// from parsed feed fields.
package record

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/libsys/oarequest/internal/feed"
)

// FarFuture is the sentinel end date for authors whose affiliation has no
// recorded end: the affiliation never ends.
var FarFuture = time.Date(3000, time.January, 1, 0, 0, 0, 0, time.UTC)

// MissingFieldError reports that a source record lacks fields required to
// build a typed record. The caller decides whether it is fatal (author) or
// skippable (publication).
type MissingFieldError struct {
	Entity string // "author" or "publication"
	ID     string // source identifier, for diagnostics
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("%s %s is missing required fields: %s",
		e.Entity, e.ID, strings.Join(e.Fields, ", "))
}

// Author is a validated author record. All fields are set at construction
// and never mutated.
type Author struct {
	ID        string
	MITID     string
	Email     string
	FirstName string
	LastName  string
	DLC       string
	StartDate time.Time // zero when the feed has no arrive date
	EndDate   time.Time // FarFuture when the feed has no leave date
}

// NewAuthor validates the parsed author fields and returns an immutable
// record. The id argument is the identifier the author was fetched by; the
// feed itself may omit it.
func NewAuthor(p *feed.Author, id string) (*Author, error) {
	if p.ID != "" {
		id = p.ID
	}
	var missing []string
	required := []struct{ name, value string }{
		{"id", id},
		{"email_address", p.Email},
		{"first_name", p.FirstName},
		{"last_name", p.LastName},
		{"dlc", p.DLC},
	}
	for _, f := range required {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFieldError{Entity: "author", ID: id, Fields: missing}
	}

	a := &Author{
		ID:        id,
		MITID:     p.MITID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		DLC:       p.DLC,
		EndDate:   FarFuture,
	}
	if p.StartDate != "" {
		d, err := time.Parse("2006-01-02", p.StartDate)
		if err != nil {
			return nil, fmt.Errorf("author %s: invalid start date %q: %w", id, p.StartDate, err)
		}
		a.StartDate = d
	}
	if p.EndDate != "" {
		d, err := time.Parse("2006-01-02", p.EndDate)
		if err != nil {
			return nil, fmt.Errorf("author %s: invalid end date %q: %w", id, p.EndDate, err)
		}
		a.EndDate = d
	}
	return a, nil
}

// Publication is a validated publication record. Citation is either carried
// over from the source or derived from the bibliographic fields.
type Publication struct {
	ID          string
	Title       string
	JournalName string
	DOI         string
	Publisher   string
	Volume      string
	Issue       string
	Year        string
	JournalURL  string

	MethodOfAcquisition   string
	PublisherEmailMessage string

	AuthorFirstName string
	AuthorLastName  string

	citation string // explicit citation from the source, if any
}

// NewPublication validates the parsed publication fields against the owning
// author and returns an immutable record.
func NewPublication(p *feed.Publication, a *Author) (*Publication, error) {
	var missing []string
	required := []struct{ name, value string }{
		{"id", p.ID},
		{"title", p.Title},
		{"journal_name", p.JournalName},
		{"author_first_name", a.FirstName},
		{"author_last_name", a.LastName},
	}
	for _, f := range required {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingFieldError{Entity: "publication", ID: p.ID, Fields: missing}
	}
	return &Publication{
		ID:              p.ID,
		Title:           p.Title,
		JournalName:     p.JournalName,
		DOI:             p.DOI,
		Publisher:       p.Publisher,
		Volume:          p.Volume,
		Issue:           p.Issue,
		Year:            p.Year,
		JournalURL:      p.JournalURL,
		AuthorFirstName: a.FirstName,
		AuthorLastName:  a.LastName,
		citation:        p.Citation,
	}, nil
}

// WithPolicies returns a copy of the publication with the journal acquisition
// fields filled in.
func (p *Publication) WithPolicies(jp *feed.JournalPolicies) *Publication {
	out := *p
	out.MethodOfAcquisition = jp.MethodOfAcquisition
	out.PublisherEmailMessage = jp.PublisherEmailMessage
	return &out
}

// Citation returns the explicit citation when the source supplied one,
// otherwise a derived citation of the form
//
//	Last, F. (year). Title. Journal, volume(issue). <a ...>doi:...</a>
//
// The year segment is omitted when unknown, the volume segment unless both
// volume and issue are present, and the DOI link unless a DOI is present.
func (p *Publication) Citation() string {
	if p.citation != "" {
		return p.citation
	}

	initial, _ := utf8.DecodeRuneInString(p.AuthorFirstName)

	var b strings.Builder
	fmt.Fprintf(&b, "%s, %c. ", p.AuthorLastName, initial)
	if p.Year != "" {
		fmt.Fprintf(&b, "(%s). ", p.Year)
	}
	fmt.Fprintf(&b, "%s. %s", p.Title, p.JournalName)
	if p.Volume != "" && p.Issue != "" {
		fmt.Fprintf(&b, ", %s(%s)", p.Volume, p.Issue)
	}
	b.WriteString(".")
	if p.DOI != "" {
		fmt.Fprintf(&b, ` <a href="https://doi.org/%s">doi:%s</a>`, p.DOI, p.DOI)
	}
	return b.String()
}

// FPVRecruitable reports whether the publication should be recruited as a
// final published version from the author: the journal's method of
// acquisition is recruit_from_author_fpv and both DOI and publisher are
// known.
func (p *Publication) FPVRecruitable() bool {
	if !strings.EqualFold(p.MethodOfAcquisition, "recruit_from_author_fpv") {
		return false
	}
	return p.DOI != "" && p.Publisher != ""
}
