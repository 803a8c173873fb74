// Package contracts manages smart contract sources: the shared example
// catalog, each user's private contract directory, and submitted contracts
// awaiting review.
package contracts

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("contract not found")
	ErrBadName  = errors.New("invalid contract name")
	ErrExists   = errors.New("contract already exists")
)

// coreFiles are headers every contract build needs; the UI shows them apart
// from the example contracts.
var coreFiles = map[string]bool{
	"qpi.h":  true,
	"m256.h": true,
}

const seedContractName = "MyContract.cpp"

const initialContract = `#include "qpi.h"

using namespace QPI;

struct MyContract : public ContractBase
{
public:
    struct GetValue_input {};
    struct GetValue_output { uint64 value; };

    PUBLIC_FUNCTION(GetValue)
        output.value = state.value;
    _

    REGISTER_USER_FUNCTIONS_AND_PROCEDURES
        REGISTER_USER_FUNCTION(GetValue, 1);
    _

protected:
    uint64 value;
};
`

type Config struct {
	// UserRoot holds one directory per user with their contracts.
	UserRoot string
	// ExamplesDir holds the shared read-only example catalog.
	ExamplesDir string
}

type Manager struct {
	cfg Config
}

func NewManager(cfg Config) *Manager {
	return &Manager{cfg: cfg}
}

// ExampleSet splits the catalog into the core headers and the actual
// example contracts.
type ExampleSet struct {
	Core     []string `json:"core"`
	Examples []string `json:"examples"`
}

func (m *Manager) ListExamples() (ExampleSet, error) {
	entries, err := os.ReadDir(m.cfg.ExamplesDir)
	if err != nil {
		return ExampleSet{}, fmt.Errorf("read examples dir: %w", err)
	}

	var set ExampleSet
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if coreFiles[name] {
			set.Core = append(set.Core, name)
		} else if strings.HasSuffix(name, ".cpp") || strings.HasSuffix(name, ".h") {
			set.Examples = append(set.Examples, name)
		}
	}
	sort.Strings(set.Core)
	sort.Strings(set.Examples)
	return set, nil
}

func (m *Manager) ReadExample(name string) (string, error) {
	clean, err := normalizeName(name)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(m.cfg.ExamplesDir, clean))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}

// ListUserContracts returns the user's contract files, creating and seeding
// the directory on first access.
func (m *Manager) ListUserContracts(user string) ([]string, error) {
	dir, err := m.ensureUserDir(user)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".cpp") || strings.HasSuffix(name, ".h") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Manager) ReadUserContract(user, name string) (string, error) {
	clean, err := normalizeName(name)
	if err != nil {
		return "", err
	}
	dir, err := m.ensureUserDir(user)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(dir, clean))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", err
	}
	return string(data), nil
}

// SaveUserContract writes the contract and returns the normalized file
// name.
func (m *Manager) SaveUserContract(user, name, content string) (string, error) {
	clean, err := normalizeName(name)
	if err != nil {
		return "", err
	}
	dir, err := m.ensureUserDir(user)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, clean), []byte(content), 0o644); err != nil {
		return "", err
	}
	return clean, nil
}

// CreateUserContract creates a new contract from the starter template.
// ErrExists if the name is taken.
func (m *Manager) CreateUserContract(user, name string) (string, error) {
	clean, err := normalizeName(name)
	if err != nil {
		return "", err
	}
	dir, err := m.ensureUserDir(user)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, clean)
	if _, err := os.Stat(path); err == nil {
		return "", ErrExists
	}
	if err := os.WriteFile(path, []byte(initialContract), 0o644); err != nil {
		return "", err
	}
	return clean, nil
}

// Receipt identifies one accepted submission.
type Receipt struct {
	ID          string    `json:"id"`
	File        string    `json:"file"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// SaveSubmission archives the submitted code under the user's directory
// with a timestamped name and returns a receipt.
func (m *Manager) SaveSubmission(user, contract, code string) (Receipt, error) {
	if _, err := normalizeName(contract); err != nil {
		return Receipt{}, err
	}
	dir, err := m.ensureUserDir(user)
	if err != nil {
		return Receipt{}, err
	}

	now := time.Now().UTC()
	file := fmt.Sprintf("submitted_%d.cpp", now.UnixMilli())
	if err := os.WriteFile(filepath.Join(dir, file), []byte(code), 0o644); err != nil {
		return Receipt{}, err
	}

	return Receipt{
		ID:          uuid.NewString(),
		File:        file,
		SubmittedAt: now,
	}, nil
}

func (m *Manager) ensureUserDir(user string) (string, error) {
	if user == "" || strings.ContainsAny(user, "/\\") || user == "." || user == ".." {
		return "", ErrBadName
	}
	dir := filepath.Join(m.cfg.UserRoot, user)
	if _, err := os.Stat(dir); err == nil {
		return dir, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	// First access gets the starter contract so the editor is never empty.
	seed := filepath.Join(dir, seedContractName)
	if err := os.WriteFile(seed, []byte(initialContract), 0o644); err != nil {
		return "", err
	}
	return dir, nil
}

// normalizeName strips any path component, defaults the extension to .cpp
// and rejects anything but contract sources and headers.
func normalizeName(name string) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", ErrBadName
	}
	if !strings.Contains(base, ".") {
		base += ".cpp"
	}
	if !strings.HasSuffix(base, ".cpp") && !strings.HasSuffix(base, ".h") {
		return "", ErrBadName
	}
	return base, nil
}
