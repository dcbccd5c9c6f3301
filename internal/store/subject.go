package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/Sheiden1/hackathon/internal/model"
)

// CreateSubject inserts a subject and returns its id.
func (s *Store) CreateSubject(ctx context.Context, sub model.Subject) (string, error) {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subjects (id, name, description) VALUES (?, ?, ?)`,
		sub.ID, sub.Name, sub.Description,
	)
	if err != nil {
		return "", err
	}
	return sub.ID, nil
}

// ListSubjects returns all subjects ordered by name.
func (s *Store) ListSubjects(ctx context.Context) ([]model.Subject, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description FROM subjects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subjects []model.Subject
	for rows.Next() {
		var sub model.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Description); err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

// GetSubject returns a subject by id, or nil if it does not exist.
func (s *Store) GetSubject(ctx context.Context, id string) (*model.Subject, error) {
	var sub model.Subject
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description FROM subjects WHERE id = ?`, id,
	).Scan(&sub.ID, &sub.Name, &sub.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
