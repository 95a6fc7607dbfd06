// Package repohost defines the source-hosting collaborator that persists
// generated content. Writes are revision-conditional: a commit names the
// revision it expects to replace, and a mismatch is a conflict rather than a
// silent overwrite.
package repohost

import (
	"context"
	"errors"
	"fmt"

	"github.com/ewortham/forgeline/internal/project"
)

// Revision identifies the stored content of a file. Empty means the file
// does not exist yet.
type Revision string

// RepositoryHost persists generated content and reports existence and
// conflicts.
type RepositoryHost interface {
	// EnsureRepository creates the repository if needed and returns its ref.
	// Idempotent: an existing repository is returned, never duplicated.
	EnsureRepository(ctx context.Context, name, description string) (project.RepositoryRef, error)

	// ReadFile returns the content and revision at path, or a NotFoundError.
	ReadFile(ctx context.Context, repo project.RepositoryRef, path string) (string, Revision, error)

	// CommitFile writes content at path provided the stored revision still
	// matches expected (empty expected means the file must not exist yet).
	// A stale expectation yields a ConflictError.
	CommitFile(ctx context.Context, repo project.RepositoryRef, path, content, message string, expected Revision) (Revision, error)

	// DeleteFile removes path under the same conditional semantics.
	DeleteFile(ctx context.Context, repo project.RepositoryRef, path string, expected Revision) error
}

// ConflictError reports a concurrent modification: the revision a commit
// expected no longer matches what is stored.
type ConflictError struct {
	Repo     string
	Path     string
	Expected Revision
	Actual   Revision
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("repohost: conflict at %s/%s: expected revision %q, found %q", e.Repo, e.Path, e.Expected, e.Actual)
}

// NotFoundError reports a missing repository or file.
type NotFoundError struct {
	Repo string
	Path string
}

func (e *NotFoundError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("repohost: repository %s not found", e.Repo)
	}
	return fmt.Sprintf("repohost: %s/%s not found", e.Repo, e.Path)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var conflict *ConflictError
	return errors.As(err, &conflict)
}
