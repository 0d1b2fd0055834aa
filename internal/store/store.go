// Package store persists authors, organizational units, and publications in
// a SQLite database with idempotent upsert semantics.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/libsys/oarequest/internal/record"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at the given path and ensures the
// schema exists.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't support concurrent writes
	db.SetMaxOpenConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS liaison (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			email_address TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1
		);

		-- Departments, labs, and centers. Name matching is exact and
		-- case-sensitive: differently-cased names create distinct rows.
		CREATE TABLE IF NOT EXISTS dlc (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			liaison_id INTEGER REFERENCES liaison(id)
		);

		CREATE TABLE IF NOT EXISTS author (
			id TEXT PRIMARY KEY,
			email_address TEXT NOT NULL,
			first_name TEXT NOT NULL,
			last_name TEXT NOT NULL,
			mit_id TEXT,
			dlc_id INTEGER REFERENCES dlc(id),
			start_date TEXT,
			end_date TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS email (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			author_id TEXT NOT NULL REFERENCES author(id),
			liaison_id INTEGER REFERENCES liaison(id),
			date_sent TEXT
		);

		-- Publications are append-only: rows are never updated once created.
		CREATE TABLE IF NOT EXISTS publication (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			citation TEXT NOT NULL,
			email_id INTEGER REFERENCES email(id)
		);

		CREATE TABLE IF NOT EXISTS publication_authors (
			author_id TEXT NOT NULL REFERENCES author(id),
			publication_id TEXT NOT NULL REFERENCES publication(id),
			PRIMARY KEY (author_id, publication_id)
		);

		CREATE INDEX IF NOT EXISTS idx_author_dlc ON author(dlc_id);
		CREATE INDEX IF NOT EXISTS idx_email_author ON email(author_id);
	`
	_, err := db.Exec(schema)
	return err
}

// UpsertAuthor writes the author's organizational unit and the author row in
// one transaction: either both exist afterward or neither does. The DLC row
// is created only when no row with that exact name exists; the author row is
// created on first sight and its mutable fields overwritten on subsequent
// sight, keyed by author id. The original created_at is never lost.
func (d *DB) UpsertAuthor(ctx context.Context, a *record.Author) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	dlcID, err := upsertDLC(ctx, tx, a.DLC)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO author (id, email_address, first_name, last_name, mit_id, dlc_id, start_date, end_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email_address = excluded.email_address,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			mit_id = excluded.mit_id,
			dlc_id = excluded.dlc_id,
			start_date = excluded.start_date,
			end_date = excluded.end_date,
			updated_at = excluded.updated_at
	`, a.ID, a.Email, a.FirstName, a.LastName, nullable(a.MITID), dlcID,
		dateOrNull(a.StartDate), a.EndDate.Format("2006-01-02"), now, now)
	if err != nil {
		return fmt.Errorf("upserting author %s: %w", a.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing author upsert: %w", err)
	}
	return nil
}

// upsertDLC returns the id of the DLC row with the given name, creating it
// if absent. Matching is case-sensitive exact: callers wanting
// case-insensitive behavior must normalize before calling.
func upsertDLC(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM dlc WHERE name = ?`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("looking up dlc %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `INSERT INTO dlc (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("creating dlc %q: %w", name, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading dlc id: %w", err)
	}
	return id, nil
}

// CreatePublication appends a publication row and its author association in
// one transaction. There is no update path for publications; avoiding
// re-insertion of an existing id is the caller's responsibility (see
// HasPublication).
func (d *DB) CreatePublication(ctx context.Context, p *record.Publication, authorID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO publication (id, title, citation) VALUES (?, ?, ?)`,
		p.ID, p.Title, p.Citation())
	if err != nil {
		return fmt.Errorf("creating publication %s: %w", p.ID, err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO publication_authors (author_id, publication_id) VALUES (?, ?)`,
		authorID, p.ID)
	if err != nil {
		return fmt.Errorf("associating publication %s with author %s: %w", p.ID, authorID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing publication: %w", err)
	}
	return nil
}

// HasPublication reports whether a publication row with the given id exists.
func (d *DB) HasPublication(ctx context.Context, publicationID string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM publication WHERE id = ?`, publicationID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking publication %s: %w", publicationID, err)
	}
	return n > 0, nil
}

// EmailRequested reports whether an email with a non-null send timestamp is
// tied to the publication: the idempotence guard against duplicate outreach.
func (d *DB) EmailRequested(ctx context.Context, publicationID string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `
		SELECT COUNT(1)
		FROM publication p
		JOIN email e ON e.id = p.email_id
		WHERE p.id = ? AND e.date_sent IS NOT NULL
	`, publicationID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking sent email for publication %s: %w", publicationID, err)
	}
	return n > 0, nil
}

// RecordEmailSent ties a sent outreach email to a publication. The
// email-sending workflow lives outside this pipeline; this writes the
// linkage that EmailRequested reads.
func (d *DB) RecordEmailSent(ctx context.Context, publicationID, authorID, dateSent string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO email (author_id, date_sent) VALUES (?, ?)`, authorID, dateSent)
	if err != nil {
		return fmt.Errorf("recording email for publication %s: %w", publicationID, err)
	}
	emailID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading email id: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE publication SET email_id = ? WHERE id = ?`, emailID, publicationID); err != nil {
		return fmt.Errorf("linking email to publication %s: %w", publicationID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing email record: %w", err)
	}
	return nil
}

// CountAuthors returns the number of author rows.
func (d *DB) CountAuthors(ctx context.Context) (int, error) {
	return d.count(ctx, "author")
}

// CountDLCs returns the number of dlc rows.
func (d *DB) CountDLCs(ctx context.Context) (int, error) {
	return d.count(ctx, "dlc")
}

// CountPublications returns the number of publication rows.
func (d *DB) CountPublications(ctx context.Context) (int, error) {
	return d.count(ctx, "publication")
}

func (d *DB) count(ctx context.Context, table string) (int, error) {
	var n int
	err := d.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM "+table).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s rows: %w", table, err)
	}
	return n, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func dateOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format("2006-01-02")
}
