package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Sheiden1/hackathon/internal/model"
)

func insertSubmission(ctx context.Context, db execer, sub *model.Submission) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = model.StatusPending
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO activity_submissions (id, activity_id, student_id, submitted_at, status, score, feedback)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.ActivityID, sub.StudentID, sub.SubmittedAt, sub.Status, sub.Score, sub.Feedback,
	)
	return err
}

func insertAnswers(ctx context.Context, db execer, submissionID string, answers []model.StudentAnswer) error {
	for _, a := range answers {
		if submissionID != "" {
			a.SubmissionID = submissionID
		}
		_, err := db.ExecContext(ctx,
			`INSERT INTO student_answers (submission_id, question_id, selected_answer, is_correct)
			 VALUES (?, ?, ?, ?)`,
			a.SubmissionID, a.QuestionID, a.SelectedAnswer, a.IsCorrect,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// CreateSubmission inserts a submission row and sets sub.ID.
func (s *Store) CreateSubmission(ctx context.Context, sub *model.Submission) error {
	return insertSubmission(ctx, s.db, sub)
}

// InsertStudentAnswers inserts answer rows for an existing submission.
func (s *Store) InsertStudentAnswers(ctx context.Context, answers []model.StudentAnswer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertAnswers(ctx, tx, "", answers); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateSubmissionWithAnswers writes a submission and all of its answers in a
// single transaction. Answer rows get the new submission id.
func (s *Store) CreateSubmissionWithAnswers(ctx context.Context, sub *model.Submission, answers []model.StudentAnswer) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertSubmission(ctx, tx, sub); err != nil {
		return err
	}
	if err := insertAnswers(ctx, tx, sub.ID, answers); err != nil {
		return err
	}
	return tx.Commit()
}

// GetSubmission returns a submission by id, or nil if missing.
func (s *Store) GetSubmission(ctx context.Context, id string) (*model.Submission, error) {
	var sub model.Submission
	err := s.db.QueryRowContext(ctx,
		`SELECT id, activity_id, student_id, submitted_at, status, score, feedback
		 FROM activity_submissions WHERE id = ?`, id,
	).Scan(&sub.ID, &sub.ActivityID, &sub.StudentID, &sub.SubmittedAt, &sub.Status, &sub.Score, &sub.Feedback)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListStudentAnswers returns the answers recorded for a submission.
func (s *Store) ListStudentAnswers(ctx context.Context, submissionID string) ([]model.StudentAnswer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT sa.submission_id, sa.question_id, sa.selected_answer, sa.is_correct
		 FROM student_answers sa
		 LEFT JOIN activity_submissions s ON s.id = sa.submission_id
		 LEFT JOIN activity_questions aq ON aq.activity_id = s.activity_id AND aq.question_id = sa.question_id
		 WHERE sa.submission_id = ?
		 ORDER BY aq.position, sa.rowid`, submissionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var answers []model.StudentAnswer
	for rows.Next() {
		var a model.StudentAnswer
		if err := rows.Scan(&a.SubmissionID, &a.QuestionID, &a.SelectedAnswer, &a.IsCorrect); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

const pendingQuery = `SELECT s.id, s.activity_id, s.student_id, s.submitted_at, s.status, s.score, s.feedback,
		COALESCE(a.title, ''), COALESCE(a.description, ''), COALESCE(NULLIF(u.display_name, ''), u.username, '')
	 FROM activity_submissions s
	 LEFT JOIN activities a ON a.id = s.activity_id
	 LEFT JOIN users u ON u.id = s.student_id`

func (s *Store) listSubmissions(ctx context.Context, where string, args ...any) ([]model.PendingSubmission, error) {
	rows, err := s.db.QueryContext(ctx, pendingQuery+` `+where+` ORDER BY s.submitted_at DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []model.PendingSubmission
	for rows.Next() {
		var p model.PendingSubmission
		if err := rows.Scan(&p.ID, &p.ActivityID, &p.StudentID, &p.SubmittedAt, &p.Status, &p.Score, &p.Feedback,
			&p.ActivityTitle, &p.ActivityDescription, &p.StudentName); err != nil {
			return nil, err
		}
		subs = append(subs, p)
	}
	return subs, rows.Err()
}

// ListPendingSubmissions returns submissions awaiting a grade, newest first.
func (s *Store) ListPendingSubmissions(ctx context.Context) ([]model.PendingSubmission, error) {
	return s.listSubmissions(ctx, `WHERE s.status = ?`, model.StatusPending)
}

// ListSubmissions returns every submission, newest first.
func (s *Store) ListSubmissions(ctx context.Context) ([]model.PendingSubmission, error) {
	return s.listSubmissions(ctx, "")
}

// GradeSubmission overwrites score and feedback, marks the submission graded
// and returns the number of rows affected.
func (s *Store) GradeSubmission(ctx context.Context, id string, score float64, feedback string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE activity_submissions SET score = ?, feedback = ?, status = ? WHERE id = ?`,
		score, feedback, model.StatusGraded, id,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
