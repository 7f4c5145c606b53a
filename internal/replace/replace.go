// Package replace implements the Replacer component: a single atomic,
// rollback-capable hard-link substitution for one target path.
//
// The protocol is rename-first, not the historical unlink-then-link
// sequence: renaming the target aside before linking means a failed
// link attempt always has something to roll back to. Unlinking first
// would, on a failed link, leave the distant source as the only
// remaining copy — reachable only if nothing else goes wrong before the
// caller notices.
package replace

import (
	"fmt"
	"os"

	"github.com/hnakamur/git-share-obj/internal/repo"
)

// Outcome is the disjoint result of one replacement attempt. Callers
// must handle all four cases explicitly — RollbackFailed in particular
// must never be silently dropped.
type Outcome int

const (
	// Linked means the target now shares the source's inode.
	Linked Outcome = iota
	// Skipped means a precondition failed before any mutation happened;
	// the original target file is untouched.
	Skipped
	// RolledBack means the link step failed but the original target was
	// successfully restored.
	RolledBack
	// RollbackFailed means the link step failed and restoring the
	// original target also failed. This is the one outcome the system
	// cannot recover from and must always be surfaced to the operator.
	RollbackFailed
)

func (o Outcome) String() string {
	switch o {
	case Linked:
		return "linked"
	case Skipped:
		return "skipped"
	case RolledBack:
		return "rolled-back"
	case RollbackFailed:
		return "rollback-failed"
	default:
		return "unknown"
	}
}

// Result carries an Outcome plus whatever diagnostic text explains it.
// Detail is empty for Linked unless the backup could not be removed
// afterwards, and usually non-empty for the other three.
type Result struct {
	Source  string
	Target  string
	Outcome Outcome
	Detail  string
}

// backupPath returns the rename-aside path for target.
func backupPath(target string) string {
	return target + repo.BackupSuffix
}

// The three syscalls below are indirected through package-level
// variables so tests can inject the I/O failures described in
// spec.md's Scenario B/C ("a hook injects EIO") without depending on
// a real faulty filesystem.
var (
	renameFunc = os.Rename
	linkFunc   = os.Link
	removeFunc = os.Remove
)

// One performs the rename-first hard-link substitution of target onto
// source. The caller is trusted to have already verified that both
// paths exist, are regular files, live on the same device, and share
// the same content fingerprint — One re-checks none of that.
func One(source, target string) Result {
	bak := backupPath(target)

	// Step 1: rename target aside. Any failure here is a skip — the
	// target is untouched because the rename never took effect.
	if err := renameFunc(target, bak); err != nil {
		return Result{
			Source: source, Target: target, Outcome: Skipped,
			Detail: fmt.Sprintf("rename target aside: %v", err),
		}
	}

	// Step 2: link source to target's old name.
	linkErr := linkFunc(source, target)
	if linkErr == nil {
		// Step 3: drop the now-redundant backup. A failure here does not
		// change the outcome — the link is already in place — but the
		// stray backup file is worth reporting.
		if err := removeFunc(bak); err != nil {
			return Result{
				Source: source, Target: target, Outcome: Linked,
				Detail: fmt.Sprintf("linked, but stray backup could not be removed: %v", err),
			}
		}
		return Result{Source: source, Target: target, Outcome: Linked}
	}

	// Step 4: the link failed. Clear any partial directory entry left by
	// the failed link, then try to restore the original from the backup.
	_ = removeFunc(target)
	if restoreErr := renameFunc(bak, target); restoreErr != nil {
		return Result{
			Source: source, Target: target, Outcome: RollbackFailed,
			Detail: fmt.Sprintf("link failed (%v) and restore failed (%v); backup remains at %s",
				linkErr, restoreErr, bak),
		}
	}
	return Result{
		Source: source, Target: target, Outcome: RolledBack,
		Detail: fmt.Sprintf("link failed: %v", linkErr),
	}
}
