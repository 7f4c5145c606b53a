// Package lock implements the per-repository advisory lock described by
// the Lock Manager component: a non-blocking exclusive flock(2) on a
// lock file inside the repository's object directory.
package lock

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/hnakamur/git-share-obj/internal/repo"
)

// Handle is an acquired lock. Release must be called on every exit path;
// closing the underlying descriptor also drops the OS-level flock, so
// Release is safe to call more than once.
type Handle struct {
	repo *repo.Repository
	file *os.File
}

// Repo returns the repository this handle locks.
func (h *Handle) Repo() *repo.Repository { return h.repo }

// Release drops the advisory lock and closes the lock file descriptor.
// It is idempotent: calling it on an already-released handle is a no-op.
func (h *Handle) Release() error {
	if h.file == nil {
		return nil
	}
	err := h.file.Close()
	h.file = nil
	if h.repo.State == repo.Held {
		h.repo.State = repo.Unlocked
	}
	return err
}

// Acquire attempts to take the exclusive advisory lock for r. On success
// it mutates r.State to Held and returns a Handle the caller must
// Release. On contention (another process already holds the lock) or on
// an I/O error creating/opening the lock file, r.State is set to Failed
// and an error describing the reason is returned; neither case is a
// crash-worthy condition, both are per-repository skips for the caller.
func Acquire(r *repo.Repository) (*Handle, error) {
	if err := os.MkdirAll(r.ObjectDir, 0o755); err != nil {
		r.State = repo.Failed
		return nil, fmt.Errorf("lock %s: create object dir: %w", r.Root, err)
	}

	file, err := os.OpenFile(r.LockPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		r.State = repo.Failed
		return nil, fmt.Errorf("lock %s: open lock file: %w", r.Root, err)
	}

	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		r.State = repo.Failed
		if err == unix.EWOULDBLOCK {
			return nil, fmt.Errorf("lock %s: already held by another process", r.Root)
		}
		return nil, fmt.Errorf("lock %s: flock: %w", r.Root, err)
	}

	r.State = repo.Held
	return &Handle{repo: r, file: file}, nil
}
