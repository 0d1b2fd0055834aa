// Package feed parses pages of the Symplectic Elements XML API into plain
// field structs. Parsing is tolerant of missing optional nodes (zero values,
// never an error) but rejects malformed XML. It makes no policy decisions
// and performs no I/O.
//
// Two namespaces are fixed by the API: the Atom feed namespace and the
// vendor namespace. All struct tags qualify element names against them.
package feed

import (
	"encoding/xml"
	"fmt"
	"sort"
)

// Namespace URIs used by every Elements API response.
const (
	NSAtom = "http://www.w3.org/2005/Atom"
	NSAPI  = "http://www.symplectic.co.uk/publications/api"
)

// Author holds the raw fields extracted from a user record page. String
// fields are empty when the source node is absent; validation happens in
// the record package.
type Author struct {
	ID        string
	MITID     string // proprietary-id attribute
	FirstName string
	LastName  string
	Email     string
	DLC       string // primary group descriptor
	StartDate string // arrive-date, ISO date string
	EndDate   string // leave-date, empty when the affiliation has no end
}

// Candidate holds the raw fields extracted from one entry of an
// author-publications feed page. It exists only long enough to be
// evaluated for eligibility.
type Candidate struct {
	ID     string
	Title  string
	TypeID string
	Year   string
	Month  string
	Day    string

	LibraryStatus    string
	RepositoryStatus string   // from the dspace source record, if any
	SourceNames      []string // de-duplicated record source names
	Exceptions       []string // de-duplicated OA policy exception types

	// Override flags from the manual source record; the raw "true"/"false"
	// strings are preserved so absent flags stay distinguishable.
	DoNotRequest string
	OptOut       string
	Received     string
	Requested    string
}

// PublicationsPage is one parsed page of an author-publications feed.
type PublicationsPage struct {
	Candidates []Candidate
	Next       string // href of the next page, empty on the last page
}

// Publication holds the raw fields extracted from a publication record page.
type Publication struct {
	ID          string
	Title       string
	Citation    string // explicit c-citation, usually absent
	DOI         string
	Publisher   string
	JournalName string
	JournalURL  string // href of the journal object, for the policies fetch
	Volume      string
	Issue       string
	Year        string
}

// JournalPolicies holds the acquisition fields from a journal policies page.
type JournalPolicies struct {
	MethodOfAcquisition   string
	PublisherEmailMessage string
}

// Wire structs. The API nests publication metadata as
// object > records > record > native > field; named fields carry their
// value in a text, boolean, or date child depending on the field.

type apiFeed struct {
	XMLName    xml.Name      `xml:"http://www.w3.org/2005/Atom feed"`
	Pagination apiPagination `xml:"http://www.symplectic.co.uk/publications/api pagination"`
	Entries    []apiEntry    `xml:"http://www.w3.org/2005/Atom entry"`
}

type apiPagination struct {
	Pages []apiPage `xml:"http://www.symplectic.co.uk/publications/api page"`
}

type apiPage struct {
	Position string `xml:"position,attr"`
	Href     string `xml:"href,attr"`
}

type apiEntry struct {
	Title  string      `xml:"http://www.w3.org/2005/Atom title"`
	Object []apiObject `xml:"http://www.symplectic.co.uk/publications/api object"`
}

type apiObject struct {
	Category      string `xml:"category,attr"`
	ID            string `xml:"id,attr"`
	TypeID        string `xml:"type-id,attr"`
	ProprietaryID string `xml:"proprietary-id,attr"`

	// User object children.
	FirstName    string `xml:"http://www.symplectic.co.uk/publications/api first-name"`
	LastName     string `xml:"http://www.symplectic.co.uk/publications/api last-name"`
	Email        string `xml:"http://www.symplectic.co.uk/publications/api email-address"`
	PrimaryGroup string `xml:"http://www.symplectic.co.uk/publications/api primary-group-descriptor"`
	ArriveDate   string `xml:"http://www.symplectic.co.uk/publications/api arrive-date"`
	StartDate    string `xml:"http://www.symplectic.co.uk/publications/api start-date"`
	LeaveDate    string `xml:"http://www.symplectic.co.uk/publications/api leave-date"`

	// Publication object children.
	Journal       apiJournal       `xml:"http://www.symplectic.co.uk/publications/api journal"`
	LibraryStatus string           `xml:"http://www.symplectic.co.uk/publications/api library-status"`
	Exceptions    []apiOAException `xml:"http://www.symplectic.co.uk/publications/api oa-policy-exception"`
	Records       []apiRecord      `xml:"http://www.symplectic.co.uk/publications/api records>record"`
}

type apiJournal struct {
	Href string `xml:"href,attr"`
}

type apiOAException struct {
	Type string `xml:"http://www.symplectic.co.uk/publications/api type"`
}

type apiRecord struct {
	SourceName string     `xml:"source-name,attr"`
	Fields     []apiField `xml:"http://www.symplectic.co.uk/publications/api native>field"`
}

type apiField struct {
	Name    string  `xml:"name,attr"`
	Text    string  `xml:"http://www.symplectic.co.uk/publications/api text"`
	Boolean string  `xml:"http://www.symplectic.co.uk/publications/api boolean"`
	Date    apiDate `xml:"http://www.symplectic.co.uk/publications/api date"`
}

type apiDate struct {
	Year  string `xml:"http://www.symplectic.co.uk/publications/api year"`
	Month string `xml:"http://www.symplectic.co.uk/publications/api month"`
	Day   string `xml:"http://www.symplectic.co.uk/publications/api day"`
}

func parseFeed(data []byte) (*apiFeed, error) {
	var f apiFeed
	if err := xml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing feed XML: %w", err)
	}
	return &f, nil
}

// firstObject returns the first object with the given category, searching
// every entry of the feed.
func (f *apiFeed) firstObject(category string) *apiObject {
	for i := range f.Entries {
		for j := range f.Entries[i].Object {
			if f.Entries[i].Object[j].Category == category {
				return &f.Entries[i].Object[j]
			}
		}
	}
	return nil
}

// fieldText returns the text value of the named field from any source
// record of the object.
func (o *apiObject) fieldText(name string) string {
	for _, r := range o.Records {
		for _, fl := range r.Fields {
			if fl.Name == name && fl.Text != "" {
				return fl.Text
			}
		}
	}
	return ""
}

// recordBySource returns the first record with the given source name.
func (o *apiObject) recordBySource(source string) *apiRecord {
	for i := range o.Records {
		if o.Records[i].SourceName == source {
			return &o.Records[i]
		}
	}
	return nil
}

func (r *apiRecord) fieldBoolean(name string) string {
	for _, fl := range r.Fields {
		if fl.Name == name {
			return fl.Boolean
		}
	}
	return ""
}

func (r *apiRecord) fieldText(name string) string {
	for _, fl := range r.Fields {
		if fl.Name == name {
			return fl.Text
		}
	}
	return ""
}

// fieldDate returns the date parts of the named field from any source record.
func (o *apiObject) fieldDate(name string) apiDate {
	for _, r := range o.Records {
		for _, fl := range r.Fields {
			if fl.Name == name && fl.Date != (apiDate{}) {
				return fl.Date
			}
		}
	}
	return apiDate{}
}

// dedupe returns the unique non-empty values, sorted. Order of multi-valued
// fields is not significant in the source feed.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// ParseAuthor extracts the author fields from a user record page.
func ParseAuthor(data []byte) (*Author, error) {
	f, err := parseFeed(data)
	if err != nil {
		return nil, err
	}
	obj := f.firstObject("user")
	if obj == nil {
		return &Author{}, nil
	}
	// Affiliation start appears as arrive-date or start-date depending on
	// the feed variant; accept either.
	start := obj.ArriveDate
	if start == "" {
		start = obj.StartDate
	}
	return &Author{
		ID:        obj.ID,
		MITID:     obj.ProprietaryID,
		FirstName: obj.FirstName,
		LastName:  obj.LastName,
		Email:     obj.Email,
		DLC:       obj.PrimaryGroup,
		StartDate: start,
		EndDate:   obj.LeaveDate,
	}, nil
}

// ParsePublicationsPage extracts the publication candidates and the next-page
// link from one page of an author-publications feed.
func ParsePublicationsPage(data []byte) (*PublicationsPage, error) {
	f, err := parseFeed(data)
	if err != nil {
		return nil, err
	}
	page := &PublicationsPage{Next: nextHref(&f.Pagination)}
	for _, entry := range f.Entries {
		for i := range entry.Object {
			obj := &entry.Object[i]
			if obj.Category != "publication" {
				continue
			}
			c := Candidate{
				ID:            obj.ID,
				Title:         obj.fieldText("title"),
				TypeID:        obj.TypeID,
				LibraryStatus: obj.LibraryStatus,
			}
			if c.Title == "" {
				c.Title = entry.Title
			}
			date := obj.fieldDate("publication-date")
			c.Year, c.Month, c.Day = date.Year, date.Month, date.Day
			var sources, exceptions []string
			for _, r := range obj.Records {
				sources = append(sources, r.SourceName)
			}
			for _, e := range obj.Exceptions {
				exceptions = append(exceptions, e.Type)
			}
			c.SourceNames = dedupe(sources)
			c.Exceptions = dedupe(exceptions)
			if manual := obj.recordBySource("manual"); manual != nil {
				c.DoNotRequest = manual.fieldBoolean("c-do-not-request")
				c.OptOut = manual.fieldBoolean("c-optout")
				c.Received = manual.fieldBoolean("c-received")
				c.Requested = manual.fieldBoolean("c-requested")
			}
			if dspace := obj.recordBySource("dspace"); dspace != nil {
				c.RepositoryStatus = dspace.fieldText("repository-status")
			}
			page.Candidates = append(page.Candidates, c)
		}
	}
	return page, nil
}

// ParsePublication extracts the bibliographic fields from a publication
// record page.
func ParsePublication(data []byte) (*Publication, error) {
	f, err := parseFeed(data)
	if err != nil {
		return nil, err
	}
	obj := f.firstObject("publication")
	if obj == nil {
		return &Publication{}, nil
	}
	title := obj.fieldText("title")
	if title == "" && len(f.Entries) > 0 {
		title = f.Entries[0].Title
	}
	return &Publication{
		ID:          obj.ID,
		Title:       title,
		Citation:    obj.fieldText("c-citation"),
		DOI:         obj.fieldText("doi"),
		Publisher:   obj.fieldText("publisher"),
		JournalName: obj.fieldText("journal"),
		JournalURL:  obj.Journal.Href,
		Volume:      obj.fieldText("volume"),
		Issue:       obj.fieldText("issue"),
		Year:        obj.fieldDate("publication-date").Year,
	}, nil
}

// ParseJournalPolicies extracts the acquisition fields from a journal
// policies page.
func ParseJournalPolicies(data []byte) (*JournalPolicies, error) {
	f, err := parseFeed(data)
	if err != nil {
		return nil, err
	}
	obj := f.firstObject("journal")
	if obj == nil {
		obj = f.firstObject("publication")
	}
	if obj == nil {
		return &JournalPolicies{}, nil
	}
	return &JournalPolicies{
		MethodOfAcquisition:   obj.fieldText("c-method-of-acquisition"),
		PublisherEmailMessage: obj.fieldText("c-publisher-related-email-message"),
	}, nil
}

func nextHref(p *apiPagination) string {
	for _, page := range p.Pages {
		if page.Position == "next" {
			return page.Href
		}
	}
	return ""
}
