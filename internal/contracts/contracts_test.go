package contracts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()
	examples := filepath.Join(root, "all-contracts")
	require.NoError(t, os.MkdirAll(examples, 0o755))

	for name, content := range map[string]string{
		"qpi.h":       "// qpi",
		"m256.h":      "// m256",
		"HM25.cpp":    "// example",
		"Vottun.cpp":  "// example",
		"notes.txt":   "ignored",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(examples, name), []byte(content), 0o644))
	}

	return NewManager(Config{
		UserRoot:    filepath.Join(root, "user-contracts"),
		ExamplesDir: examples,
	})
}

func TestListExamplesSplitsCoreFromExamples(t *testing.T) {
	m := newTestManager(t)

	set, err := m.ListExamples()
	require.NoError(t, err)
	assert.Equal(t, []string{"m256.h", "qpi.h"}, set.Core)
	assert.Equal(t, []string{"HM25.cpp", "Vottun.cpp"}, set.Examples)
}

func TestReadExampleRejectsUnknownAndTraversal(t *testing.T) {
	m := newTestManager(t)

	content, err := m.ReadExample("HM25.cpp")
	require.NoError(t, err)
	assert.Equal(t, "// example", content)

	_, err = m.ReadExample("Missing.cpp")
	assert.ErrorIs(t, err, ErrNotFound)

	// Path components are stripped, so this resolves inside the catalog.
	_, err = m.ReadExample("../all-contracts/HM25.cpp")
	require.NoError(t, err)
}

func TestFirstAccessSeedsStarterContract(t *testing.T) {
	m := newTestManager(t)

	names, err := m.ListUserContracts("alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"MyContract.cpp"}, names)

	content, err := m.ReadUserContract("alice", "MyContract.cpp")
	require.NoError(t, err)
	assert.Contains(t, content, "ContractBase")
}

func TestSaveNormalizesContractName(t *testing.T) {
	m := newTestManager(t)

	name, err := m.SaveUserContract("alice", "  token  ", "// code")
	require.NoError(t, err)
	assert.Equal(t, "token.cpp", name)

	content, err := m.ReadUserContract("alice", "token")
	require.NoError(t, err)
	assert.Equal(t, "// code", content)

	_, err = m.SaveUserContract("alice", "evil.sh", "#!/bin/sh")
	assert.ErrorIs(t, err, ErrBadName)
}

func TestCreateUserContractRefusesDuplicates(t *testing.T) {
	m := newTestManager(t)

	name, err := m.CreateUserContract("alice", "fresh")
	require.NoError(t, err)
	assert.Equal(t, "fresh.cpp", name)

	_, err = m.CreateUserContract("alice", "fresh.cpp")
	assert.ErrorIs(t, err, ErrExists)
}

func TestUserDirectoriesAreIsolated(t *testing.T) {
	m := newTestManager(t)

	_, err := m.SaveUserContract("alice", "secret", "// alice only")
	require.NoError(t, err)

	names, err := m.ListUserContracts("bob")
	require.NoError(t, err)
	assert.NotContains(t, names, "secret.cpp")

	_, err = m.ListUserContracts("../alice")
	assert.ErrorIs(t, err, ErrBadName)
}

func TestSaveSubmissionWritesTimestampedCopy(t *testing.T) {
	m := newTestManager(t)

	receipt, err := m.SaveSubmission("alice", "token.cpp", "// submitted")
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.ID)
	assert.Regexp(t, `^submitted_\d+\.cpp$`, receipt.File)

	content, err := m.ReadUserContract("alice", receipt.File)
	require.NoError(t, err)
	assert.Equal(t, "// submitted", content)
}
