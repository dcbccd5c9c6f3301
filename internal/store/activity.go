package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/Sheiden1/hackathon/internal/model"
)

// CreateActivity inserts an activity with its questions in the given order.
func (s *Store) CreateActivity(ctx context.Context, a model.Activity, questionIDs []string) (string, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO activities (id, title, description, subject_id, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Description, a.SubjectID, a.CreatedBy, time.Now().UTC(),
	)
	if err != nil {
		return "", err
	}
	for pos, qID := range questionIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO activity_questions (activity_id, question_id, position) VALUES (?, ?, ?)`,
			a.ID, qID, pos,
		)
		if err != nil {
			return "", err
		}
	}
	return a.ID, tx.Commit()
}

// GetActivity returns an activity joined with its subject name, or nil if missing.
func (s *Store) GetActivity(ctx context.Context, id string) (*model.Activity, error) {
	var a model.Activity
	err := s.db.QueryRowContext(ctx,
		`SELECT a.id, a.title, a.description, a.subject_id, COALESCE(sj.name, ''), a.created_by, a.created_at
		 FROM activities a LEFT JOIN subjects sj ON sj.id = a.subject_id
		 WHERE a.id = ?`, id,
	).Scan(&a.ID, &a.Title, &a.Description, &a.SubjectID, &a.SubjectName, &a.CreatedBy, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListActivities returns all activities, newest first.
func (s *Store) ListActivities(ctx context.Context) ([]model.Activity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.id, a.title, a.description, a.subject_id, COALESCE(sj.name, ''), a.created_by, a.created_at
		 FROM activities a LEFT JOIN subjects sj ON sj.id = a.subject_id
		 ORDER BY a.created_at DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var activities []model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.Title, &a.Description, &a.SubjectID, &a.SubjectName, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// ActivityQuestions returns an activity's question rows in position order.
func (s *Store) ActivityQuestions(ctx context.Context, activityID string) ([]model.StoredQuestion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT q.id, q.subject_id, q.question_text, q.option_a, q.option_b, q.option_c, q.option_d,
		        q.correct_answer, q.difficulty, q.source, q.created_at
		 FROM activity_questions aq JOIN questions q ON q.id = aq.question_id
		 WHERE aq.activity_id = ?
		 ORDER BY aq.position`, activityID,
	)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}
