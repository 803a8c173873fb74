package auth

import (
	"database/sql"
	"errors"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store on PostgreSQL for deployments where a
// shared credential database replaces the JSON file.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	store := &PostgresStore{db: db}
	if err := store.createTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *PostgresStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		username VARCHAR(255) PRIMARY KEY,
		password_hash VARCHAR(255) NOT NULL,
		created TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);
	`
	_, err := s.db.Exec(query)
	return err
}

func (s *PostgresStore) Create(username, password string) error {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return ErrUserAlreadyExists
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		"INSERT INTO users (username, password_hash, created) VALUES ($1, $2, $3)",
		username, hash, time.Now().UTC(),
	)
	return err
}

func (s *PostgresStore) Verify(username, password string) error {
	var hash string
	err := s.db.QueryRow("SELECT password_hash FROM users WHERE username = $1", username).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return err
	}
	return checkPassword(hash, password)
}

func (s *PostgresStore) Exists(username string) (bool, error) {
	var exists bool
	err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}
