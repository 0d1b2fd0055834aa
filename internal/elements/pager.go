package elements

import (
	"context"

	"github.com/libsys/oarequest/internal/feed"
)

// Pager iterates over the pages of a paginated publications feed, one page
// at a time. Each page is fetched and parsed lazily when Next is called, so
// the caller can process page N before page N+1 exists in memory. The
// sequence is forward-only: a failed fetch or an unreadable page ends it at
// that point and already-yielded pages remain valid.
//
// Usage follows the bufio.Scanner shape:
//
//	pager := client.AuthorPublications(id)
//	for pager.Next(ctx) {
//		use(pager.Page())
//	}
//	if err := pager.Err(); err != nil { ... }
type Pager struct {
	client *Client
	next   string
	page   *feed.PublicationsPage
	err    error
}

// Next fetches and parses the next page. It returns false when the previous
// page had no next-page link or the fetch or parse failed; Err distinguishes
// the cases.
func (p *Pager) Next(ctx context.Context) bool {
	if p.err != nil || p.next == "" {
		return false
	}
	body, err := p.client.Get(ctx, p.next)
	if err != nil {
		p.err = err
		return false
	}
	page, err := feed.ParsePublicationsPage(body)
	if err != nil {
		p.err = err
		return false
	}
	p.page = page
	p.next = page.Next
	return true
}

// Page returns the most recently fetched page.
func (p *Pager) Page() *feed.PublicationsPage {
	return p.page
}

// Err returns the error that ended the sequence, if any.
func (p *Pager) Err() error {
	return p.err
}
