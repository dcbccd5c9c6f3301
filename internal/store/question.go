package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Sheiden1/hackathon/internal/model"
)

const questionColumns = `id, subject_id, question_text, option_a, option_b, option_c, option_d,
	correct_answer, difficulty, source, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(r rowScanner) (model.StoredQuestion, error) {
	var q model.StoredQuestion
	err := r.Scan(&q.ID, &q.SubjectID, &q.QuestionText, &q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
		&q.CorrectAnswer, &q.Difficulty, &q.Source, &q.CreatedAt)
	return q, err
}

func collectQuestions(rows *sql.Rows) ([]model.StoredQuestion, error) {
	defer rows.Close()
	var questions []model.StoredQuestion
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertQuestion(ctx context.Context, db execer, q *model.StoredQuestion) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.Difficulty == "" {
		q.Difficulty = model.DifficultyMedium
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO questions (`+questionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.SubjectID, q.QuestionText, q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.CorrectAnswer, q.Difficulty, q.Source, q.CreatedAt,
	)
	return err
}

// InsertQuestion stores a question and returns its id.
func (s *Store) InsertQuestion(ctx context.Context, q model.StoredQuestion) (string, error) {
	if err := insertQuestion(ctx, s.db, &q); err != nil {
		return "", err
	}
	return q.ID, nil
}

// InsertQuestions stores a batch of questions in one transaction. Ids and
// timestamps are filled in on the passed slice.
func (s *Store) InsertQuestions(ctx context.Context, qs []model.StoredQuestion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i := range qs {
		if err := insertQuestion(ctx, tx, &qs[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetQuestion returns a question by id. It returns sql.ErrNoRows if missing.
func (s *Store) GetQuestion(ctx context.Context, id string) (model.StoredQuestion, error) {
	return scanQuestion(s.db.QueryRowContext(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
}

// ListQuestionsFiltered returns questions for a subject, newest first.
// An empty subjectID means every subject; limit <= 0 means no limit.
func (s *Store) ListQuestionsFiltered(ctx context.Context, subjectID string, limit int) ([]model.StoredQuestion, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE 1=1`
	var args []any
	if subjectID != "" {
		query += ` AND subject_id = ?`
		args = append(args, subjectID)
	}
	query += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}
