package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/libsys/oarequest/internal/elements"
	"github.com/libsys/oarequest/internal/record"
	"github.com/libsys/oarequest/internal/store"
)

const testAuthorXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:api="http://www.symplectic.co.uk/publications/api">
  <entry>
    <api:object category="user" id="12338" proprietary-id="900047894">
      <api:first-name>Bilbo</api:first-name>
      <api:last-name>Baggins</api:last-name>
      <api:email-address>bbaggins@example.edu</api:email-address>
      <api:primary-group-descriptor>Dept of Shire Studies</api:primary-group-descriptor>
      <api:arrive-date>2001-09-22</api:arrive-date>
    </api:object>
  </entry>
</feed>`

// publicationsXML lists three candidates: one pre-policy (2008), one with a
// library status (2010), and one clean journal article (2012).
const publicationsXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:api="http://www.symplectic.co.uk/publications/api">
  <api:pagination>
    <api:page position="this" href="unused"/>
  </api:pagination>
  <entry>
    <title>Before the Policy</title>
    <api:object category="publication" id="100" type-id="3">
      <api:records>
        <api:record source-name="web-of-science">
          <api:native>
            <api:field name="publication-date">
              <api:date><api:year>2008</api:year><api:month>1</api:month><api:day>1</api:day></api:date>
            </api:field>
          </api:native>
        </api:record>
      </api:records>
    </api:object>
  </entry>
  <entry>
    <title>Already In Hand</title>
    <api:object category="publication" id="200" type-id="3">
      <api:library-status>full-text-requested</api:library-status>
      <api:records>
        <api:record source-name="web-of-science">
          <api:native>
            <api:field name="publication-date">
              <api:date><api:year>2010</api:year><api:month>6</api:month><api:day>1</api:day></api:date>
            </api:field>
          </api:native>
        </api:record>
      </api:records>
    </api:object>
  </entry>
  <entry>
    <title>On Rings</title>
    <api:object category="publication" id="300" type-id="3">
      <api:records>
        <api:record source-name="web-of-science">
          <api:native>
            <api:field name="publication-date">
              <api:date><api:year>2012</api:year><api:month>1</api:month><api:day>1</api:day></api:date>
            </api:field>
          </api:native>
        </api:record>
      </api:records>
    </api:object>
  </entry>
</feed>`

const publicationXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:api="http://www.symplectic.co.uk/publications/api">
  <entry>
    <title>On Rings</title>
    <api:object category="publication" id="300" type-id="3">
      <api:records>
        <api:record source-name="web-of-science">
          <api:native>
            <api:field name="journal"><api:text>Shire Quarterly</api:text></api:field>
            <api:field name="volume"><api:text>3</api:text></api:field>
            <api:field name="issue"><api:text>2</api:text></api:field>
            <api:field name="publication-date">
              <api:date><api:year>2012</api:year></api:date>
            </api:field>
          </api:native>
        </api:record>
      </api:records>
    </api:object>
  </entry>
</feed>`

// testServer serves an author, their publications feed, and publication 300.
func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/12338", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, testAuthorXML)
	})
	mux.HandleFunc("/users/12338/publications", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, publicationsXML)
	})
	mux.HandleFunc("/publications/300", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, publicationXML)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testImporter(t *testing.T, baseURL string) (*Importer, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.DiscardHandler)
	return New(elements.NewClient(baseURL, elements.WithLogger(logger)), db, logger), db
}

func TestRunImportsOnlyEligiblePublications(t *testing.T) {
	srv := testServer(t)
	im, db := testImporter(t, srv.URL)
	ctx := context.Background()

	summary, err := im.Run(ctx, "12338")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.Candidates != 3 {
		t.Errorf("Candidates = %d, want 3", summary.Candidates)
	}
	if summary.Eligible != 1 {
		t.Errorf("Eligible = %d, want 1", summary.Eligible)
	}
	if summary.Imported != 1 {
		t.Errorf("Imported = %d, want 1", summary.Imported)
	}

	pubs, err := db.CountPublications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pubs != 1 {
		t.Errorf("CountPublications() = %d, want exactly the 2012 article", pubs)
	}
	exists, err := db.HasPublication(ctx, "300")
	if err != nil {
		t.Fatal(err)
	}
	if !exists {
		t.Error("publication 300 not imported")
	}
}

func TestRunIsIdempotent(t *testing.T) {
	srv := testServer(t)
	im, db := testImporter(t, srv.URL)
	ctx := context.Background()

	if _, err := im.Run(ctx, "12338"); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	summary, err := im.Run(ctx, "12338")
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	if summary.Imported != 0 || summary.Skipped != 1 {
		t.Errorf("second run imported = %d, skipped = %d; want 0 and 1",
			summary.Imported, summary.Skipped)
	}

	authors, err := db.CountAuthors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	dlcs, err := db.CountDLCs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	pubs, err := db.CountPublications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if authors != 1 || dlcs != 1 || pubs != 1 {
		t.Errorf("rows after two runs: authors %d, dlcs %d, publications %d; want 1 each",
			authors, dlcs, pubs)
	}
}

func TestRunAuthorNotFoundIsFatal(t *testing.T) {
	srv := testServer(t)
	im, _ := testImporter(t, srv.URL)

	_, err := im.Run(context.Background(), "404000")
	if err == nil {
		t.Fatal("Run() succeeded for unknown author")
	}
	var se *elements.StatusError
	if !errors.As(err, &se) {
		t.Errorf("error = %v, want StatusError", err)
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %q, want author-not-found message", err)
	}
}

func TestRunAuthorMissingFieldsIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/12338", func(w http.ResponseWriter, r *http.Request) {
		// No email address.
		io.WriteString(w, `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:api="http://www.symplectic.co.uk/publications/api">
  <entry>
    <api:object category="user" id="12338">
      <api:first-name>Bilbo</api:first-name>
      <api:last-name>Baggins</api:last-name>
      <api:primary-group-descriptor>Dept of Shire Studies</api:primary-group-descriptor>
    </api:object>
  </entry>
</feed>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	im, _ := testImporter(t, srv.URL)
	_, err := im.Run(context.Background(), "12338")
	var mf *record.MissingFieldError
	if !errors.As(err, &mf) {
		t.Fatalf("Run() error = %v, want MissingFieldError", err)
	}
}

func TestRunSkipsPublicationThatFailsToBuild(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/users/12338", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, testAuthorXML)
	})
	mux.HandleFunc("/users/12338/publications", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, publicationsXML)
	})
	mux.HandleFunc("/publications/300", func(w http.ResponseWriter, r *http.Request) {
		// Detail page without a journal name: the builder must reject it.
		io.WriteString(w, `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:api="http://www.symplectic.co.uk/publications/api">
  <entry>
    <title>On Rings</title>
    <api:object category="publication" id="300" type-id="3"/>
  </entry>
</feed>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	im, db := testImporter(t, srv.URL)
	ctx := context.Background()
	summary, err := im.Run(ctx, "12338")
	if err != nil {
		t.Fatalf("Run() error = %v, want skip-and-continue", err)
	}
	if summary.Imported != 0 || summary.Skipped != 1 {
		t.Errorf("imported = %d, skipped = %d; want 0 and 1", summary.Imported, summary.Skipped)
	}
	pubs, err := db.CountPublications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pubs != 0 {
		t.Errorf("CountPublications() = %d, want 0", pubs)
	}
	authors, err := db.CountAuthors(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if authors != 1 {
		t.Errorf("CountAuthors() = %d, want the author row kept", authors)
	}
}

func TestRunAlreadyRequestedIsSkipped(t *testing.T) {
	srv := testServer(t)
	im, db := testImporter(t, srv.URL)
	ctx := context.Background()

	if _, err := im.Run(ctx, "12338"); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordEmailSent(ctx, "300", "12338", "2024-05-01"); err != nil {
		t.Fatal(err)
	}

	summary, err := im.Run(ctx, "12338")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Imported != 0 || summary.Skipped != 1 {
		t.Errorf("imported = %d, skipped = %d; want request guard to skip",
			summary.Imported, summary.Skipped)
	}
}

func TestRunJournalPoliciesAreOpportunistic(t *testing.T) {
	var policiesCalled bool
	var srv *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/users/12338", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, testAuthorXML)
	})
	mux.HandleFunc("/users/12338/publications", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, publicationsXML)
	})
	mux.HandleFunc("/publications/300", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:api="http://www.symplectic.co.uk/publications/api">
  <entry>
    <title>On Rings</title>
    <api:object category="publication" id="300" type-id="3">
      <api:journal href="%s/journals/555"/>
      <api:records>
        <api:record source-name="web-of-science">
          <api:native>
            <api:field name="journal"><api:text>Shire Quarterly</api:text></api:field>
          </api:native>
        </api:record>
      </api:records>
    </api:object>
  </entry>
</feed>`, srv.URL)
	})
	mux.HandleFunc("/journals/555/policies", func(w http.ResponseWriter, r *http.Request) {
		policiesCalled = true
		// Unavailable policies must not block the import.
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	srv = httptest.NewServer(mux)
	defer srv.Close()

	im, db := testImporter(t, srv.URL)
	ctx := context.Background()
	summary, err := im.Run(ctx, "12338")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !policiesCalled {
		t.Error("journal policies endpoint never fetched")
	}
	if summary.Imported != 1 {
		t.Errorf("Imported = %d, want 1 despite policy failure", summary.Imported)
	}
	pubs, err := db.CountPublications(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if pubs != 1 {
		t.Errorf("CountPublications() = %d, want 1", pubs)
	}
}
