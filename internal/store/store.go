package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db       *sql.DB
	tokenTTL time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithTokenTTL sets how long issued bearer tokens stay valid.
func WithTokenTTL(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.tokenTTL = d
		}
	}
}

func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if strings.HasPrefix(dbPath, ":memory:") {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, tokenTTL: DefaultTokenTTL}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS access_tokens (
		token TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		issued_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		subject_id TEXT NOT NULL,
		question_text TEXT NOT NULL,
		option_a TEXT NOT NULL,
		option_b TEXT NOT NULL,
		option_c TEXT NOT NULL,
		option_d TEXT NOT NULL,
		correct_answer TEXT NOT NULL,
		difficulty TEXT NOT NULL DEFAULT 'medium',
		source TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		FOREIGN KEY (subject_id) REFERENCES subjects(id)
	);

	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		subject_id TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (subject_id) REFERENCES subjects(id)
	);

	CREATE TABLE IF NOT EXISTS activity_questions (
		activity_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (activity_id, question_id),
		FOREIGN KEY (activity_id) REFERENCES activities(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS activity_submissions (
		id TEXT PRIMARY KEY,
		activity_id TEXT NOT NULL,
		student_id TEXT NOT NULL,
		submitted_at DATETIME NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		score REAL,
		feedback TEXT,
		FOREIGN KEY (activity_id) REFERENCES activities(id),
		FOREIGN KEY (student_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS student_answers (
		submission_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		selected_answer TEXT NOT NULL,
		is_correct INTEGER NOT NULL,
		PRIMARY KEY (submission_id, question_id),
		FOREIGN KEY (submission_id) REFERENCES activity_submissions(id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_status ON activity_submissions(status, submitted_at);
	CREATE INDEX IF NOT EXISTS idx_questions_subject ON questions(subject_id);
	CREATE INDEX IF NOT EXISTS idx_access_tokens_user ON access_tokens(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}
