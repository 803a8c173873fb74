// Package workspace manages the per-user on-disk project trees. Every user
// gets a private copy of the shared template under
// <projects>/<user>/<src-dir>, and every file operation resolves its path
// against that root before touching the filesystem.
package workspace

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrPathTraversal = errors.New("invalid file path: outside workspace root")
	ErrNotFound      = errors.New("file not found")
	ErrBadExtension  = errors.New("file extension not allowed")
)

type Config struct {
	ProjectsRoot string
	TemplateDir  string
	SrcDirName   string
	ListExts     []string
	CreateExts   []string
}

type Manager struct {
	projectsRoot string
	templateDir  string
	srcDirName   string
	listExts     map[string]struct{}
	createExts   map[string]struct{}
}

func NewManager(cfg Config) *Manager {
	srcDirName := cfg.SrcDirName
	if srcDirName == "" {
		srcDirName = "cli-commands"
	}

	listExts := cfg.ListExts
	if len(listExts) == 0 {
		listExts = []string{".cpp", ".h", ".txt", ".json", ".c", ".hpp"}
	}
	createExts := cfg.CreateExts
	if len(createExts) == 0 {
		createExts = []string{".cpp", ".h"}
	}

	return &Manager{
		projectsRoot: cfg.ProjectsRoot,
		templateDir:  cfg.TemplateDir,
		srcDirName:   srcDirName,
		listExts:     extSet(listExts),
		createExts:   extSet(createExts),
	}
}

// ProjectDir is the per-user root that gets mounted into the sandbox.
func (m *Manager) ProjectDir(user string) string {
	return filepath.Join(m.projectsRoot, user)
}

// SourceDir is the editable source subtree inside the project dir.
func (m *Manager) SourceDir(user string) string {
	return filepath.Join(m.ProjectDir(user), m.srcDirName)
}

// Create sets up the user's workspace if absent, copying the template tree
// into the source subtree. Calling it again returns the existing path.
func (m *Manager) Create(user string) (string, error) {
	projectDir := m.ProjectDir(user)
	srcDir := m.SourceDir(user)

	if _, err := os.Stat(srcDir); err == nil {
		return projectDir, nil
	}

	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	if err := copyTree(m.templateDir, srcDir); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return projectDir, nil
}

// ListFiles enumerates workspace files relative to the source subtree using
// forward slashes. An empty user lists the shared template instead.
func (m *Manager) ListFiles(user string) ([]string, error) {
	if user == "" {
		return listTree(m.templateDir, m.listExts)
	}
	if _, err := m.Create(user); err != nil {
		return nil, err
	}
	return listTree(m.SourceDir(user), m.listExts)
}

// ReadFile returns the content of one workspace file. An empty user reads
// from the shared template (read-only preview for unauthenticated clients).
func (m *Manager) ReadFile(user, rel string) (string, error) {
	base := m.templateDir
	if user != "" {
		base = m.SourceDir(user)
	}

	full, _, err := resolve(base, rel)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
		}
		return "", fmt.Errorf("read file: %w", err)
	}
	return string(data), nil
}

// WriteFile persists content, creating intermediate directories as needed,
// and returns the canonical slash-separated relative path.
func (m *Manager) WriteFile(user, rel, content string) (string, error) {
	full, canonical, err := resolve(m.SourceDir(user), rel)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}
	return canonical, nil
}

// CreateFile creates an empty source file. It reports false without error
// when the file already exists. Only the restricted source extensions are
// accepted.
func (m *Manager) CreateFile(user, rel string) (bool, error) {
	full, _, err := resolve(m.SourceDir(user), rel)
	if err != nil {
		return false, err
	}

	ext := strings.ToLower(filepath.Ext(full))
	if _, ok := m.createExts[ext]; !ok {
		return false, fmt.Errorf("%w: %s", ErrBadExtension, ext)
	}

	if _, err := os.Stat(full); err == nil {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return false, fmt.Errorf("create file: %w", err)
	}
	if err := os.WriteFile(full, nil, 0o644); err != nil {
		return false, fmt.Errorf("create file: %w", err)
	}
	return true, nil
}

// Reset destroys the user's source subtree and recreates it from the
// template, returning the fresh file list.
func (m *Manager) Reset(user string) ([]string, error) {
	srcDir := m.SourceDir(user)

	if err := os.RemoveAll(srcDir); err != nil {
		return nil, fmt.Errorf("reset workspace: %w", err)
	}
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return nil, fmt.Errorf("reset workspace: %w", err)
	}
	if err := copyTree(m.templateDir, srcDir); err != nil {
		return nil, fmt.Errorf("reset workspace: %w", err)
	}
	return listTree(srcDir, m.listExts)
}

// resolve validates that rel stays inside base and returns both the absolute
// path and the canonical slash-separated relative form. It never touches the
// filesystem, so traversal attempts are rejected before any I/O.
func resolve(base, rel string) (full, canonical string, err error) {
	trimmed := strings.TrimLeft(strings.TrimSpace(rel), "/")
	if trimmed == "" {
		return "", "", ErrPathTraversal
	}

	full = filepath.Join(base, filepath.FromSlash(trimmed))
	relToBase, err := filepath.Rel(base, full)
	if err != nil {
		return "", "", ErrPathTraversal
	}
	if relToBase == ".." || strings.HasPrefix(relToBase, ".."+string(filepath.Separator)) {
		return "", "", ErrPathTraversal
	}
	return full, filepath.ToSlash(relToBase), nil
}

func listTree(root string, exts map[string]struct{}) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if _, ok := exts[ext]; !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func copyTree(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := os.MkdirAll(dstPath, 0o755); err != nil {
				return err
			}
			if err := copyTree(srcPath, dstPath); err != nil {
				return err
			}
			continue
		}

		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func extSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return set
}
