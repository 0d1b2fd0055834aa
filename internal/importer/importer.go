// Package importer sequences one author's import: fetch and persist the
// author, then walk the paginated publications feed, filter for eligibility,
// and persist each qualifying publication.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/libsys/oarequest/internal/elements"
	"github.com/libsys/oarequest/internal/feed"
	"github.com/libsys/oarequest/internal/policy"
	"github.com/libsys/oarequest/internal/record"
	"github.com/libsys/oarequest/internal/store"
)

// Importer drives the import pipeline for one author at a time. It owns no
// state between runs; everything in flight is discarded when Run returns
// except what was committed to storage.
type Importer struct {
	client *elements.Client
	db     *store.DB
	logger *slog.Logger
}

// New creates an Importer with its collaborators.
func New(client *elements.Client, db *store.DB, logger *slog.Logger) *Importer {
	return &Importer{client: client, db: db, logger: logger}
}

// Summary reports what one run did.
type Summary struct {
	AuthorID   string
	Pages      int
	Candidates int
	Eligible   int
	Imported   int
	Skipped    int
	Truncated  bool // the page sequence ended early on a fetch error
}

// Run imports the author with the given id and their qualifying
// publications. A failure to fetch, parse, or persist the author is fatal to
// the run; a failure on a single publication skips that publication and the
// loop continues. Nothing is retried.
func (im *Importer) Run(ctx context.Context, authorID string) (*Summary, error) {
	im.logger.Info("retrieving author", "author_id", authorID)
	body, err := im.client.GetAuthor(ctx, authorID)
	if err != nil {
		var se *elements.StatusError
		if errors.As(err, &se) && se.NotFound() {
			return nil, fmt.Errorf("author %s not found: %w", authorID, err)
		}
		return nil, fmt.Errorf("fetching author %s: %w", authorID, err)
	}
	parsed, err := feed.ParseAuthor(body)
	if err != nil {
		return nil, fmt.Errorf("parsing author %s: %w", authorID, err)
	}
	author, err := record.NewAuthor(parsed, authorID)
	if err != nil {
		return nil, err
	}

	if err := im.db.UpsertAuthor(ctx, author); err != nil {
		return nil, err
	}
	im.logger.Info("author stored", "author_id", author.ID, "dlc", author.DLC)

	summary := &Summary{AuthorID: author.ID}
	pager := im.client.AuthorPublications(author.ID)
	for pager.Next(ctx) {
		page := pager.Page()
		summary.Pages++
		for i := range page.Candidates {
			c := &page.Candidates[i]
			summary.Candidates++
			decision := policy.Evaluate(c, author)
			if !decision.Eligible {
				im.logger.Debug("publication not eligible",
					"publication_id", c.ID, "reason", decision.Reason)
				continue
			}
			summary.Eligible++
			imported, err := im.importOne(ctx, c.ID, author)
			if err != nil {
				im.logger.Warn("skipping publication",
					"publication_id", c.ID, "error", err)
				summary.Skipped++
				continue
			}
			if imported {
				summary.Imported++
			} else {
				summary.Skipped++
			}
		}
	}
	if err := pager.Err(); err != nil {
		im.logger.Error("publications feed truncated", "error", err)
		summary.Truncated = true
	}

	im.logger.Info("import finished",
		"author_id", author.ID,
		"pages", summary.Pages,
		"candidates", summary.Candidates,
		"eligible", summary.Eligible,
		"imported", summary.Imported,
		"skipped", summary.Skipped)
	return summary, nil
}

// importOne fetches, builds, and persists a single publication. It returns
// false with a nil error when the publication was skipped deliberately
// (already imported or already requested).
func (im *Importer) importOne(ctx context.Context, publicationID string, author *record.Author) (bool, error) {
	body, err := im.client.GetPublication(ctx, publicationID)
	if err != nil {
		return false, fmt.Errorf("fetching publication: %w", err)
	}
	parsed, err := feed.ParsePublication(body)
	if err != nil {
		return false, fmt.Errorf("parsing publication: %w", err)
	}
	pub, err := record.NewPublication(parsed, author)
	if err != nil {
		return false, err
	}

	if pub.JournalURL != "" {
		// Best effort: a publication without its journal's policy fields is
		// still worth importing.
		if policies, err := im.fetchPolicies(ctx, pub.JournalURL); err != nil {
			im.logger.Debug("journal policies unavailable",
				"publication_id", pub.ID, "error", err)
		} else {
			pub = pub.WithPolicies(policies)
		}
	}
	if pub.FPVRecruitable() {
		im.logger.Debug("publication recruitable as final published version",
			"publication_id", pub.ID, "doi", pub.DOI)
	}

	requested, err := im.db.EmailRequested(ctx, pub.ID)
	if err != nil {
		return false, err
	}
	if requested {
		im.logger.Info("publication already requested, skipping",
			"publication_id", pub.ID)
		return false, nil
	}
	exists, err := im.db.HasPublication(ctx, pub.ID)
	if err != nil {
		return false, err
	}
	if exists {
		im.logger.Info("publication already imported, skipping",
			"publication_id", pub.ID)
		return false, nil
	}

	if err := im.db.CreatePublication(ctx, pub, author.ID); err != nil {
		return false, err
	}
	im.logger.Info("publication imported", "publication_id", pub.ID)
	return true, nil
}

func (im *Importer) fetchPolicies(ctx context.Context, journalURL string) (*feed.JournalPolicies, error) {
	body, err := im.client.GetJournalPolicies(ctx, journalURL)
	if err != nil {
		return nil, err
	}
	return feed.ParseJournalPolicies(body)
}
