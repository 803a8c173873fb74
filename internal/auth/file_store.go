package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// FileStore keeps credentials in a single JSON file mapping username to
// {passwordHash, created}. All access goes through one mutex; the file is
// rewritten whole on every change, which is fine at the scale of a
// classroom-sized user base.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Create(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return err
	}
	if _, exists := users[username]; exists {
		return ErrUserAlreadyExists
	}

	hash, err := hashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	users[username] = Credential{PasswordHash: hash, Created: time.Now().UTC()}
	return s.save(users)
}

func (s *FileStore) Verify(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return err
	}
	cred, exists := users[username]
	if !exists {
		return ErrUserNotFound
	}
	return checkPassword(cred.PasswordHash, password)
}

func (s *FileStore) Exists(username string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.load()
	if err != nil {
		return false, err
	}
	_, exists := users[username]
	return exists, nil
}

func (s *FileStore) load() (map[string]Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]Credential), nil
		}
		return nil, fmt.Errorf("read users file: %w", err)
	}

	users := make(map[string]Credential)
	if len(data) == 0 {
		return users, nil
	}
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	return users, nil
}

func (s *FileStore) save(users map[string]Credential) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode users file: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write users file: %w", err)
	}
	return nil
}
