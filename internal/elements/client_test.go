package elements

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetAuthenticates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, "<feed xmlns=\"http://www.w3.org/2005/Atom\"/>")
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithCredentials("svc", "secret"))
	body, err := c.Get(context.Background(), "users/12338")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(body) == 0 {
		t.Error("Get() returned empty body")
	}
}

func TestGetPathJoining(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/secure-api/v5.5/")
	if _, err := c.Get(context.Background(), "/users/12338"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotPath != "/secure-api/v5.5/users/12338" {
		t.Errorf("request path = %q", gotPath)
	}

	// Absolute URLs bypass the base (pagination links come back absolute).
	if _, err := c.Get(context.Background(), srv.URL+"/elsewhere"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if gotPath != "/elsewhere" {
		t.Errorf("request path = %q", gotPath)
	}
}

func TestGetStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Get(context.Background(), "users/404")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Get() error = %v, want StatusError", err)
	}
	if !se.NotFound() {
		t.Errorf("NotFound() = false for status %d", se.StatusCode)
	}
}

// pagedHandler serves a three-page feed where each page links to the next by
// absolute URL.
func pagedHandler(t *testing.T, srvURL func() string, failOn int) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		if page == "" {
			page = "1"
		}
		n := map[string]int{"1": 1, "2": 2, "3": 3}[page]
		if n == failOn {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		next := ""
		if n < 3 {
			next = fmt.Sprintf(`<api:page position="next" href="%s/users/1/publications?detail=full&amp;page=%d"/>`, srvURL(), n+1)
		}
		fmt.Fprintf(w, `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:api="http://www.symplectic.co.uk/publications/api">
  <api:pagination>
    <api:page position="this" href="%s/users/1/publications?detail=full&amp;page=%d"/>
    %s
  </api:pagination>
  <entry><title>page %d</title></entry>
</feed>`, srvURL(), n, next, n)
	}
}

func TestPagerWalksAllPages(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(pagedHandler(t, func() string { return srv.URL }, 0))
	defer srv.Close()

	c := NewClient(srv.URL)
	pager := c.AuthorPublications("1")
	var pages int
	for pager.Next(context.Background()) {
		pages++
		if pager.Page() == nil {
			t.Error("Page() returned nil after a successful Next")
		}
	}
	if err := pager.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if pages != 3 {
		t.Errorf("pages = %d, want 3", pages)
	}
}

func TestPagerTruncatesOnError(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(pagedHandler(t, func() string { return srv.URL }, 2))
	defer srv.Close()

	c := NewClient(srv.URL)
	pager := c.AuthorPublications("1")
	var pages int
	for pager.Next(context.Background()) {
		pages++
	}
	if pages != 1 {
		t.Errorf("pages = %d, want 1 page before the failure", pages)
	}
	var se *StatusError
	if !errors.As(pager.Err(), &se) {
		t.Fatalf("Err() = %v, want StatusError", pager.Err())
	}
	// The sequence is over; further calls stay stopped.
	if pager.Next(context.Background()) {
		t.Error("Next() = true after a failed fetch")
	}
}

func TestPagerMalformedPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<feed><unclosed")
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	pager := c.AuthorPublications("1")
	if pager.Next(context.Background()) {
		t.Error("Next() = true for malformed page")
	}
	if pager.Err() == nil {
		t.Error("Err() = nil, want parse error")
	}
}

func TestGetJournalPolicies(t *testing.T) {
	var gotURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, err := c.GetJournalPolicies(context.Background(), srv.URL+"/journals/555"); err != nil {
		t.Fatalf("GetJournalPolicies() error = %v", err)
	}
	if gotURL != "/journals/555/policies?detail=full" {
		t.Errorf("request URL = %q", gotURL)
	}
}
