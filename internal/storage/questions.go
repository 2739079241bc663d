package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/conorfennell/qbank/internal/domain"
	"github.com/conorfennell/qbank/internal/fingerprint"
	"github.com/conorfennell/qbank/internal/validation"
)

var exampleQuestions = []domain.Question{
	{
		Question:     "What is a goroutine?",
		Answer:       "A goroutine is a function executing concurrently with other goroutines in the same address space. It is lightweight, costing little more than the allocation of stack space, and the runtime multiplexes goroutines onto a small number of OS threads.",
		ShowInReview: true,
	},
	{
		Question:     "Explain the concept of a 'closure' in Go",
		Answer:       "A closure is a function value that references variables from outside its body. The function may access and assign to the referenced variables; in this sense the function is bound to the variables, and they live as long as the closure does.",
		ShowInReview: true,
	},
	{
		Question:     "What are interfaces in Go and how are they satisfied?",
		Answer:       "An interface type is defined as a set of method signatures. A type satisfies an interface implicitly by implementing its methods:\n\n1. There is no explicit declaration of intent\n2. Interfaces decouple the definition from the implementation\n3. Small interfaces such as io.Reader compose into larger ones\n4. The empty interface is satisfied by every type",
		ShowInReview: true,
	},
}

func fingerprintOf(q domain.Question) string {
	return fingerprint.Of(q)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertQuestion(ctx context.Context, tx execer, q domain.Question) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO questions (id, question, answer, show_in_review, fingerprint)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			question = excluded.question,
			answer = excluded.answer,
			show_in_review = excluded.show_in_review,
			fingerprint = excluded.fingerprint
	`, q.ID, q.Question, q.Answer, q.ShowInReview, fingerprintOf(q))
	if err != nil {
		return fmt.Errorf("failed to write question %s: %w", q.ID, err)
	}
	return nil
}

func scanQuestions(rows *sql.Rows) ([]domain.Question, error) {
	defer rows.Close()

	var qs []domain.Question
	for rows.Next() {
		var q domain.Question
		if err := rows.Scan(&q.ID, &q.Question, &q.Answer, &q.ShowInReview); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		qs = append(qs, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate question rows: %w", err)
	}
	return qs, nil
}

// GetAll returns every stored question that has a question or an answer, in
// insertion order.
func (db *DB) GetAll(ctx context.Context) ([]domain.Question, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, question, answer, show_in_review
		FROM questions
		WHERE question != '' OR answer != ''
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all questions: %w", err)
	}
	qs, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}
	if qs == nil {
		qs = []domain.Question{}
	}
	return qs, nil
}

// Get retrieves a single question by id. It returns nil, nil when absent.
func (db *DB) Get(ctx context.Context, id string) (*domain.Question, error) {
	var q domain.Question
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, question, answer, show_in_review
		FROM questions WHERE id = ?
	`, id).Scan(&q.ID, &q.Question, &q.Answer, &q.ShowInReview)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Question not found
		}
		return nil, fmt.Errorf("failed to get question %s: %w", id, err)
	}
	return &q, nil
}

// Add stores a new question under a freshly generated id and returns that id.
// Any id on the input is ignored.
func (db *DB) Add(ctx context.Context, q domain.Question) (string, error) {
	q.ID = db.newID()
	if err := validation.ValidateQuestion(q).Err(); err != nil {
		return "", err
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO questions (id, question, answer, show_in_review, fingerprint)
			VALUES (?, ?, ?, ?, ?)
		`, q.ID, q.Question, q.Answer, q.ShowInReview, fingerprintOf(q))
		if err != nil {
			return fmt.Errorf("failed to insert question: %w", err)
		}
		_, err = db.touch(ctx, tx)
		return err
	})
	if err != nil {
		return "", err
	}
	return q.ID, nil
}

// Update replaces the question stored under q.ID, creating it when absent.
func (db *DB) Update(ctx context.Context, q domain.Question) (string, error) {
	if err := validation.ValidateQuestion(q).Err(); err != nil {
		return "", err
	}

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertQuestion(ctx, tx, q); err != nil {
			return err
		}
		_, err := db.touch(ctx, tx)
		return err
	})
	if err != nil {
		return "", err
	}
	return q.ID, nil
}

// Delete removes the question with the given id. Deleting an absent id is not
// an error.
func (db *DB) Delete(ctx context.Context, id string) (string, error) {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete question %s: %w", id, err)
		}
		_, err := db.touch(ctx, tx)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ClearAll removes every question.
func (db *DB) ClearAll(ctx context.Context) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM questions`); err != nil {
			return fmt.Errorf("failed to clear questions: %w", err)
		}
		_, err := db.touch(ctx, tx)
		return err
	})
}

// HasFingerprint reports whether a question with the given content fingerprint
// is already stored.
func (db *DB) HasFingerprint(ctx context.Context, fp string) (bool, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions WHERE fingerprint = ?`, fp).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up fingerprint %s: %w", fp, err)
	}
	return n > 0, nil
}
