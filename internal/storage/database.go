package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/qbank/internal/domain"
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn  *sql.DB
	now   func() time.Time
	newID func() string
}

// Option configures a DB at open time.
type Option func(*DB)

// WithClock replaces the wall clock used for the last-modified marker.
func WithClock(now func() time.Time) Option {
	return func(db *DB) { db.now = now }
}

// WithIDGenerator replaces the generator used for new question ids.
func WithIDGenerator(newID func() string) Option {
	return func(db *DB) { db.newID = newID }
}

// Open creates a new database connection and ensures the schema is up to date.
// The example questions are written only when the database is created for the
// first time; legacy records are migrated on every open.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases alive.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{
		conn:  conn,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(db)
	}

	ctx := context.Background()
	existed, err := db.tableExists(ctx, "questions")
	if err != nil {
		conn.Close()
		return nil, err
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := db.migrate(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	if err := db.initialize(ctx, !existed); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// LastModifiedAt returns the last-modified marker in milliseconds, or 0 when the
// questions have never been mutated.
func (db *DB) LastModifiedAt(ctx context.Context) (int64, error) {
	return readMarker(ctx, db.conn)
}

// WasModifiedSince reports whether any mutation happened after the given marker.
func (db *DB) WasModifiedSince(ctx context.Context, marker int64) (bool, error) {
	last, err := db.LastModifiedAt(ctx)
	if err != nil {
		return false, err
	}
	return last > marker, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func readMarker(ctx context.Context, q queryer) (int64, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaLastModified).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last-modified marker: %w", err)
	}
	marker, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse last-modified marker %q: %w", raw, err)
	}
	return marker, nil
}

// touch advances the last-modified marker inside tx. The marker follows the
// clock but never repeats, so writes within one millisecond stay ordered.
func (db *DB) touch(ctx context.Context, tx *sql.Tx) (int64, error) {
	prev, err := readMarker(ctx, tx)
	if err != nil {
		return 0, err
	}
	next := db.now().UnixMilli()
	if next <= prev {
		next = prev + 1
	}
	if err := setMeta(ctx, tx, metaLastModified, strconv.FormatInt(next, 10)); err != nil {
		return 0, fmt.Errorf("failed to update last-modified marker: %w", err)
	}
	return next, nil
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (db *DB) tableExists(ctx context.Context, name string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check for table %s: %w", name, err)
	}
	return n > 0, nil
}

// columns returns the declared type of every column of table, keyed by name.
func columns(ctx context.Context, tx *sql.Tx, table string) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		cols[name] = strings.ToUpper(colType)
	}
	return cols, rows.Err()
}

// migrate brings records written by older versions up to the current shape:
// every record gets a show_in_review flag and a fingerprint, and records with
// non-text identifiers are rewritten under a fresh id.
func (db *DB) migrate(ctx context.Context) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		cols, err := columns(ctx, tx, "questions")
		if err != nil {
			return err
		}
		if _, ok := cols["show_in_review"]; !ok {
			if _, err := tx.ExecContext(ctx, `ALTER TABLE questions ADD COLUMN show_in_review INTEGER DEFAULT 1`); err != nil {
				return fmt.Errorf("failed to add show_in_review column: %w", err)
			}
		}
		if _, ok := cols["fingerprint"]; !ok {
			if _, err := tx.ExecContext(ctx, `ALTER TABLE questions ADD COLUMN fingerprint TEXT`); err != nil {
				return fmt.Errorf("failed to add fingerprint column: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE questions SET show_in_review = 1 WHERE show_in_review IS NULL`); err != nil {
			return fmt.Errorf("failed to default show_in_review: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE questions SET question = COALESCE(question, ''), answer = COALESCE(answer, '')
			WHERE question IS NULL OR answer IS NULL
		`); err != nil {
			return fmt.Errorf("failed to default question text: %w", err)
		}

		var rewritten int
		if cols["id"] != "TEXT" {
			rewritten, err = db.rebuildQuestions(ctx, tx)
		} else {
			rewritten, err = db.rewriteLegacyIDs(ctx, tx)
		}
		if err != nil {
			return err
		}

		filled, err := db.fillFingerprints(ctx, tx)
		if err != nil {
			return err
		}
		if rewritten > 0 || filled > 0 {
			slog.Info("migrated legacy questions", "ids_rewritten", rewritten, "fingerprints_filled", filled)
		}
		return nil
	})
}

type legacyRow struct {
	rowID        int64
	id           any
	question     sql.NullString
	answer       sql.NullString
	showInReview sql.NullBool
}

func scanLegacyRows(rows *sql.Rows) ([]legacyRow, error) {
	defer rows.Close()
	var out []legacyRow
	for rows.Next() {
		var r legacyRow
		if err := rows.Scan(&r.rowID, &r.id, &r.question, &r.answer, &r.showInReview); err != nil {
			return nil, fmt.Errorf("failed to scan legacy question: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (r legacyRow) toQuestion(id string) domain.Question {
	return domain.Question{
		ID:           id,
		Question:     r.question.String,
		Answer:       r.answer.String,
		ShowInReview: !r.showInReview.Valid || r.showInReview.Bool,
	}
}

// rewriteLegacyIDs handles tables whose id column is TEXT but which still hold
// values stored with another type.
func (db *DB) rewriteLegacyIDs(ctx context.Context, tx *sql.Tx) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT rowid, id, question, answer, show_in_review
		FROM questions WHERE typeof(id) != 'text'
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to find legacy ids: %w", err)
	}
	legacy, err := scanLegacyRows(rows)
	if err != nil {
		return 0, err
	}

	for _, r := range legacy {
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE rowid = ?`, r.rowID); err != nil {
			return 0, fmt.Errorf("failed to remove legacy question %v: %w", r.id, err)
		}
		if err := upsertQuestion(ctx, tx, r.toQuestion(db.newID())); err != nil {
			return 0, err
		}
	}
	return len(legacy), nil
}

// rebuildQuestions replaces a table whose id column cannot hold text ids.
func (db *DB) rebuildQuestions(ctx context.Context, tx *sql.Tx) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT rowid, id, question, answer, show_in_review
		FROM questions ORDER BY rowid
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to read legacy questions: %w", err)
	}
	legacy, err := scanLegacyRows(rows)
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, questionsTableV2); err != nil {
		return 0, fmt.Errorf("failed to create replacement questions table: %w", err)
	}
	rewritten := 0
	for _, r := range legacy {
		id, ok := r.id.(string)
		if !ok || id == "" {
			id = db.newID()
			rewritten++
		}
		q := r.toQuestion(id)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO questions_v2 (id, question, answer, show_in_review, fingerprint)
			VALUES (?, ?, ?, ?, ?)
		`, q.ID, q.Question, q.Answer, q.ShowInReview, fingerprintOf(q)); err != nil {
			return 0, fmt.Errorf("failed to copy legacy question %v: %w", r.id, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DROP TABLE questions`); err != nil {
		return 0, fmt.Errorf("failed to drop legacy questions table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `ALTER TABLE questions_v2 RENAME TO questions`); err != nil {
		return 0, fmt.Errorf("failed to rename questions table: %w", err)
	}
	return rewritten, nil
}

func (db *DB) fillFingerprints(ctx context.Context, tx *sql.Tx) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, question, answer, show_in_review
		FROM questions WHERE fingerprint IS NULL
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to find questions without fingerprint: %w", err)
	}
	qs, err := scanQuestions(rows)
	if err != nil {
		return 0, err
	}
	for _, q := range qs {
		if _, err := tx.ExecContext(ctx, `UPDATE questions SET fingerprint = ? WHERE id = ?`, fingerprintOf(q), q.ID); err != nil {
			return 0, fmt.Errorf("failed to fill fingerprint for %s: %w", q.ID, err)
		}
	}
	return len(qs), nil
}

// initialize records when the database was first set up. The example
// questions are written only if no creation record exists yet and the
// questions table was created by this Open. Legacy databases get the record
// without the examples.
func (db *DB) initialize(ctx context.Context, fresh bool) error {
	_, created, err := db.getMeta(ctx, metaCreatedAt)
	if err != nil {
		return err
	}
	if created {
		return nil
	}
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if fresh {
			for _, q := range exampleQuestions {
				q.ID = db.newID()
				if err := upsertQuestion(ctx, tx, q); err != nil {
					return fmt.Errorf("failed to seed example questions: %w", err)
				}
			}
		}
		return setMeta(ctx, tx, metaCreatedAt, db.now().UTC().Format(time.RFC3339))
	})
}
