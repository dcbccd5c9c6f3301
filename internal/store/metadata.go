package store

import (
	"context"
	"database/sql"
)

const importKeyPrefix = "import:"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// GetImportedFileHash returns the content hash recorded for a question file,
// or "" if it was never imported.
func (s *Store) GetImportedFileHash(ctx context.Context, name string) (string, error) {
	return s.GetMetadata(ctx, importKeyPrefix+name)
}

// SetImportedFileHash records the content hash of an imported question file.
func (s *Store) SetImportedFileHash(ctx context.Context, name, hash string) error {
	return s.SetMetadata(ctx, importKeyPrefix+name, hash)
}
