// Package orchestrate drives the full pipeline: discover, lock,
// pre-validate, scan/group, replace, post-validate, and summarize.
package orchestrate

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/hnakamur/git-share-obj/internal/config"
	"github.com/hnakamur/git-share-obj/internal/journal"
	"github.com/hnakamur/git-share-obj/internal/lock"
	"github.com/hnakamur/git-share-obj/internal/replace"
	"github.com/hnakamur/git-share-obj/internal/repo"
	"github.com/hnakamur/git-share-obj/internal/scan"
	"github.com/hnakamur/git-share-obj/internal/validate"
)

// Exit codes, per spec.md §6.
const (
	ExitSuccess           = 0
	ExitInputError        = 1
	ExitValidationFailure = 2
	ExitPostValidation    = 3
)

// Message is one line of unconditional output: lock failures,
// validation failures, and RollbackFailed outcomes must surface here
// regardless of the Verbose setting.
type Message struct {
	Text string
}

// Summary reports the outcome of one run, per spec.md §4.5 step 9.
type Summary struct {
	ReposScanned          int
	LocksFailed           int
	PreValidationFailures int
	GroupsFound           int
	ReplacementsAttempted int
	Linked                int
	RolledBack            int
	RollbackFailed        int
	BytesReclaimed        int64

	ExitCode int
	Messages []Message
}

func (s *Summary) logf(format string, args ...any) {
	s.Messages = append(s.Messages, Message{Text: fmt.Sprintf(format, args...)})
}

// Run executes the pipeline described in SPEC_FULL.md §4.5 for cfg and
// returns the resulting Summary. Run never calls os.Exit; the caller
// maps Summary.ExitCode to the process exit status.
func Run(ctx context.Context, cfg config.Config) *Summary {
	s := &Summary{}

	for _, root := range cfg.Roots {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			s.logf("invalid root %s: %v", root, errOrNotDir(err, info))
			s.ExitCode = ExitInputError
			return s
		}
	}

	repos, discErr := scan.DiscoverRepos(cfg.Roots)
	if discErr != nil {
		s.logf("discovery error: %v", discErr)
	}
	s.ReposScanned = len(repos)

	var j journal.Appender = journal.NullJournal{}
	if cfg.JournalEnabled {
		opened, err := journal.Open(cfg.JournalPath)
		if err != nil {
			s.logf("journal disabled for this run: %v", err)
		} else {
			j = opened
		}
	}
	defer j.Close()

	locked := make([]*repo.Repository, 0, len(repos))
	handles := make(map[*repo.Repository]*lock.Handle, len(repos))
	if cfg.NoLock {
		locked = append(locked, repos...)
	} else {
		sort.Slice(repos, func(i, k int) bool { return repos[i].Root < repos[k].Root })
		for _, r := range repos {
			h, err := lock.Acquire(r)
			if err != nil {
				s.LocksFailed++
				s.logf("lock failed for %s: %v", r.Root, err)
				continue
			}
			handles[r] = h
			locked = append(locked, r)
		}
	}
	defer func() {
		for _, h := range handles {
			if err := h.Release(); err != nil {
				s.logf("lock release failed for %s: %v", h.Repo().Root, err)
			}
		}
	}()

	if cfg.FsckOnly {
		anyFailed := false
		for _, r := range locked {
			res := validateOne(ctx, r)
			if !res.OK {
				anyFailed = true
				s.PreValidationFailures++
				s.logf("validation failed for %s: %s", r.Root, res.Detail())
			}
		}
		if anyFailed {
			s.ExitCode = ExitValidationFailure
		}
		return s
	}

	toScan := locked
	if !cfg.NoFsck {
		toScan = toScan[:0]
		for _, r := range locked {
			res := validateOne(ctx, r)
			if !res.OK {
				s.PreValidationFailures++
				s.logf("pre-validation failed for %s: %s", r.Root, res.Detail())
				continue
			}
			toScan = append(toScan, r)
		}
	}

	plans, groupErrs := scan.CollectGroups(toScan)
	for _, e := range groupErrs {
		s.logf("scan error: %v", e)
	}
	s.GroupsFound = len(plans)

	mutated := make(map[string]bool)
	for _, plan := range plans {
		for _, target := range plan.Targets {
			s.ReplacementsAttempted++
			if cfg.DryRun {
				s.logf("dry-run: would link %s -> %s", plan.Source.Path, target.Path)
				continue
			}

			targetRepo := repoRootFor(toScan, target.Path)
			res := replaceOne(plan.Source.Path, target.Path)
			recordOutcome(s, j, targetRepo, res)
			switch res.Outcome {
			case replace.Linked:
				s.Linked++
				s.BytesReclaimed += plan.Source.Size
				mutated[targetRepo] = true
			case replace.RolledBack:
				s.RolledBack++
			case replace.RollbackFailed:
				s.RollbackFailed++
				s.logf("ROLLBACK FAILED for %s: %s", target.Path, res.Detail)
				// A RollbackFailed target is now missing at the moment the
				// object store was left in an unknown state: the repo must
				// still be fsck'd, and the run must not report success.
				mutated[targetRepo] = true
				s.ExitCode = ExitPostValidation
			}
		}
	}

	if !cfg.DryRun && !cfg.NoFsck {
		anyPostFailed := false
		for _, r := range toScan {
			if !mutated[r.Root] {
				continue
			}
			res := validateOne(ctx, r)
			if !res.OK {
				anyPostFailed = true
				s.logf("post-validation failed for %s: %s", r.Root, res.Detail())
			}
		}
		if anyPostFailed {
			s.ExitCode = ExitPostValidation
		}
	}

	return s
}

func recordOutcome(s *Summary, j journal.Appender, repoRoot string, res replace.Result) {
	if err := j.Append(journal.Entry{
		Time:    time.Now().UTC().Format(time.RFC3339),
		Repo:    repoRoot,
		Source:  res.Source,
		Target:  res.Target,
		Outcome: res.Outcome.String(),
		Detail:  res.Detail,
	}); err != nil {
		s.logf("journal append failed: %v", err)
	}
}

func repoRootFor(repos []*repo.Repository, path string) string {
	for _, r := range repos {
		if len(path) >= len(r.ObjectDir) && path[:len(r.ObjectDir)] == r.ObjectDir {
			return r.Root
		}
	}
	return ""
}

func validateOne(ctx context.Context, r *repo.Repository) validate.Result {
	return validate.Run(ctx, r)
}

// replaceOne is indirected through a package-level variable, the same
// test-seam idiom internal/replace itself uses, so tests in this
// package can force a RollbackFailed outcome without real disk faults.
var replaceOne = replace.One

func errOrNotDir(err error, info os.FileInfo) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("not a directory")
}
