package auth

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestFileStoreCreateAndVerify(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "users.json"))

	if err := store.Create("alice", "hunter2hunter2"); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.Verify("alice", "hunter2hunter2"); err != nil {
		t.Fatalf("verify with correct password: %v", err)
	}
	if err := store.Verify("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if err := store.Verify("bob", "whatever"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestFileStoreRejectsDuplicateUser(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "users.json"))

	if err := store.Create("alice", "hunter2hunter2"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create("alice", "another"); !errors.Is(err, ErrUserAlreadyExists) {
		t.Fatalf("expected ErrUserAlreadyExists, got %v", err)
	}
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	first := NewFileStore(path)
	if err := first.Create("alice", "hunter2hunter2"); err != nil {
		t.Fatalf("create: %v", err)
	}

	second := NewFileStore(path)
	exists, err := second.Exists("alice")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !exists {
		t.Fatalf("expected alice to survive a new store instance")
	}
	if err := second.Verify("alice", "hunter2hunter2"); err != nil {
		t.Fatalf("verify on second instance: %v", err)
	}
}

func TestFileStoreExistsOnEmptyStore(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "users.json"))

	exists, err := store.Exists("nobody")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatalf("expected no users in a fresh store")
	}
}
