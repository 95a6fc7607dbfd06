package repohost

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ewortham/forgeline/internal/project"
)

// Dir hosts repositories as directories on the local filesystem. Each
// repository lives under root/<name>/ with a repository.yaml metadata
// document, the committed files under files/, and a commits.log journal.
type Dir struct {
	root  string
	clock func() time.Time
}

// DirOption customizes a Dir host during construction.
type DirOption func(*Dir)

// WithClock overrides the clock used for metadata timestamps.
func WithClock(clock func() time.Time) DirOption {
	return func(d *Dir) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// NewDir creates a filesystem host rooted at root.
func NewDir(root string, opts ...DirOption) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("repohost: root directory is required")
	}
	d := &Dir{root: root, clock: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// metadata models repository.yaml.
type metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
	CreatedAt   string `yaml:"created_at"`
	UpdatedAt   string `yaml:"updated_at"`
}

// EnsureRepository creates root/<name>/ if needed and returns the same ref
// for repeated calls with the same name.
func (d *Dir) EnsureRepository(_ context.Context, name, description string) (project.RepositoryRef, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return project.RepositoryRef{}, fmt.Errorf("repohost: repository name is required")
	}
	repoDir := filepath.Join(d.root, name)
	metaPath := filepath.Join(repoDir, "repository.yaml")

	if data, err := os.ReadFile(metaPath); err == nil {
		var meta metadata
		if err := yaml.Unmarshal(data, &meta); err == nil && meta.Name != "" {
			return project.RepositoryRef{Name: meta.Name, Description: meta.Description, Location: repoDir}, nil
		}
	}

	if err := os.MkdirAll(filepath.Join(repoDir, "files"), 0o755); err != nil {
		return project.RepositoryRef{}, fmt.Errorf("repohost: create repository %s: %w", name, err)
	}
	now := d.clock().Format(time.RFC3339)
	meta := metadata{Name: name, Description: description, CreatedAt: now, UpdatedAt: now}
	encoded, err := yaml.Marshal(meta)
	if err != nil {
		return project.RepositoryRef{}, fmt.Errorf("repohost: encode metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, encoded, 0o644); err != nil {
		return project.RepositoryRef{}, fmt.Errorf("repohost: write metadata: %w", err)
	}
	return project.RepositoryRef{Name: name, Description: description, Location: repoDir}, nil
}

// ReadFile returns the stored content and revision at path.
func (d *Dir) ReadFile(_ context.Context, repo project.RepositoryRef, path string) (string, Revision, error) {
	full, err := d.filePath(repo, path)
	if err != nil {
		return "", "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", &NotFoundError{Repo: repo.Name, Path: path}
		}
		return "", "", fmt.Errorf("repohost: read %s/%s: %w", repo.Name, path, err)
	}
	return string(data), revisionOf(data), nil
}

// CommitFile writes content at path when the stored revision matches
// expected, appending the commit message to the repository journal.
func (d *Dir) CommitFile(ctx context.Context, repo project.RepositoryRef, path, content, message string, expected Revision) (Revision, error) {
	full, err := d.filePath(repo, path)
	if err != nil {
		return "", err
	}
	current, err := currentRevision(full)
	if err != nil {
		return "", fmt.Errorf("repohost: stat %s/%s: %w", repo.Name, path, err)
	}
	if current != expected {
		return "", &ConflictError{Repo: repo.Name, Path: path, Expected: expected, Actual: current}
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("repohost: create directories for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("repohost: write %s/%s: %w", repo.Name, path, err)
	}
	d.appendJournal(repo, fmt.Sprintf("commit %s: %s", path, strings.TrimSpace(message)))
	d.touchMetadata(repo)
	return revisionOf([]byte(content)), nil
}

// DeleteFile removes path under the same conditional semantics as commits.
func (d *Dir) DeleteFile(_ context.Context, repo project.RepositoryRef, path string, expected Revision) error {
	full, err := d.filePath(repo, path)
	if err != nil {
		return err
	}
	current, err := currentRevision(full)
	if err != nil {
		return fmt.Errorf("repohost: stat %s/%s: %w", repo.Name, path, err)
	}
	if current == "" {
		return &NotFoundError{Repo: repo.Name, Path: path}
	}
	if current != expected {
		return &ConflictError{Repo: repo.Name, Path: path, Expected: expected, Actual: current}
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("repohost: delete %s/%s: %w", repo.Name, path, err)
	}
	d.appendJournal(repo, fmt.Sprintf("delete %s", path))
	d.touchMetadata(repo)
	return nil
}

func (d *Dir) filePath(repo project.RepositoryRef, path string) (string, error) {
	if strings.TrimSpace(repo.Name) == "" {
		return "", fmt.Errorf("repohost: repository ref is missing a name")
	}
	cleaned := filepath.Clean(strings.TrimPrefix(strings.TrimSpace(path), "/"))
	if cleaned == "." || cleaned == "" || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("repohost: invalid path %q", path)
	}
	repoDir := filepath.Join(d.root, repo.Name)
	if _, err := os.Stat(filepath.Join(repoDir, "repository.yaml")); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &NotFoundError{Repo: repo.Name}
		}
		return "", fmt.Errorf("repohost: stat repository %s: %w", repo.Name, err)
	}
	return filepath.Join(repoDir, "files", filepath.FromSlash(cleaned)), nil
}

func (d *Dir) appendJournal(repo project.RepositoryRef, message string) {
	path := filepath.Join(d.root, repo.Name, "commits.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "%s %s\n", d.clock().Format(time.RFC3339), message)
}

func (d *Dir) touchMetadata(repo project.RepositoryRef) {
	metaPath := filepath.Join(d.root, repo.Name, "repository.yaml")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return
	}
	var meta metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return
	}
	meta.UpdatedAt = d.clock().Format(time.RFC3339)
	encoded, err := yaml.Marshal(meta)
	if err != nil {
		return
	}
	_ = os.WriteFile(metaPath, encoded, 0o644)
}

func currentRevision(full string) (Revision, error) {
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return revisionOf(data), nil
}

func revisionOf(data []byte) Revision {
	sum := sha256.Sum256(data)
	return Revision(hex.EncodeToString(sum[:6]))
}
