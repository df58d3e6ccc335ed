// Package sandbox provides isolated, disposable working directories for
// build attempts. Each sandbox is exclusively owned by one in-flight target
// build and is removed on every exit path, whatever the build outcome.
package sandbox

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/pgmill/pgmill/internal/errors"
	"github.com/pgmill/pgmill/internal/logfields"
)

// Sandbox owns one uniquely named disposable directory holding a private
// copy of the source tree. Never shared across targets or concurrent
// attempts.
type Sandbox struct {
	id       string
	dir      string
	released bool
}

// Acquire creates a sandbox under baseDir (os.TempDir when empty) and copies
// the source tree into it. The original source path stays valid and
// unmodified for subsequent targets.
func Acquire(sourcePath, baseDir string) (*Sandbox, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	id := uuid.NewString()
	dir := filepath.Join(baseDir, "pgmill-"+id)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.SandboxCreationFailed("mkdir", err).WithContext("path", dir)
	}

	if err := copyTree(sourcePath, dir); err != nil {
		// Half-materialized sandboxes are useless; remove before failing.
		_ = os.RemoveAll(dir)
		return nil, errors.SandboxCreationFailed("copy source tree", err).
			WithContext("source", sourcePath)
	}

	slog.Debug("Acquired sandbox", logfields.Sandbox(dir))
	return &Sandbox{id: id, dir: dir}, nil
}

// ID returns the sandbox's unique identifier.
func (s *Sandbox) ID() string { return s.id }

// Path returns the sandbox's working directory.
func (s *Sandbox) Path() string { return s.dir }

// Release removes the sandbox directory. Idempotent. Cleanup failures are
// returned as warnings for the report; they never override a build outcome
// already determined.
func (s *Sandbox) Release() []string {
	if s.released {
		return nil
	}
	s.released = true

	if err := os.RemoveAll(s.dir); err != nil {
		warn := errors.SandboxCleanupWarning(s.dir, err)
		slog.Warn("Sandbox cleanup failed", logfields.Sandbox(s.dir), logfields.Error(err))
		return []string{warn.Error()}
	}

	slog.Debug("Released sandbox", logfields.Sandbox(s.dir))
	return nil
}

// copyTree mirrors the regular files, directories, and symlinks of src into
// dst, preserving permissions.
func copyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("source path %q is not a directory", src)
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		mode := info.Mode()

		switch {
		case d.IsDir():
			return os.MkdirAll(target, mode.Perm())
		case mode&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		case mode.IsRegular():
			return copyFile(path, target, mode.Perm())
		default:
			return fmt.Errorf("unsupported file type %s at %s", mode, path)
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
