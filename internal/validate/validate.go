// Package validate runs the host version control system's full
// integrity check against a repository and classifies the result.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/hnakamur/git-share-obj/internal/repo"
)

// Result is the outcome of validating one repository.
type Result struct {
	Repo    *repo.Repository
	OK      bool
	Stderr  string
	ExitErr error // non-nil only when the child process itself could not run
}

// Run invokes "git -C <repo.Root> fsck --full", the non-dangling-tolerant
// full object-graph check, and classifies the result by exit status:
// zero is OK, non-zero is a failure carrying the captured stderr.
func Run(ctx context.Context, r *repo.Repository) Result {
	cmd := exec.CommandContext(ctx, "git", "-C", r.Root, "fsck", "--full")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return Result{Repo: r, OK: true}
	}

	if _, isExitErr := err.(*exec.ExitError); isExitErr {
		return Result{
			Repo:   r,
			OK:     false,
			Stderr: strings.TrimSpace(stderr.String()),
		}
	}

	// The child process could not be started or be waited on at all
	// (e.g. git binary missing). This is still a validation failure —
	// the repository cannot be confirmed healthy — but we keep the
	// underlying error around for diagnostics.
	return Result{
		Repo:    r,
		OK:      false,
		Stderr:  strings.TrimSpace(stderr.String()),
		ExitErr: err,
	}
}

// RunAll validates every repository in repos in order, stopping for
// nothing: callers that need an all-or-nothing gate should inspect each
// Result's OK field themselves.
func RunAll(ctx context.Context, repos []*repo.Repository) []Result {
	results := make([]Result, 0, len(repos))
	for _, r := range repos {
		results = append(results, Run(ctx, r))
	}
	return results
}

// Detail renders a one-line diagnostic for a failed Result, falling back
// to the underlying process error when stderr was empty.
func (res Result) Detail() string {
	if res.Stderr != "" {
		return res.Stderr
	}
	if res.ExitErr != nil {
		return res.ExitErr.Error()
	}
	return fmt.Sprintf("fsck failed for %s", res.Repo.Root)
}
