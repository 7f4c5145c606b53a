package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hnakamur/git-share-obj/internal/config"
	"github.com/hnakamur/git-share-obj/internal/orchestrate"
	"github.com/spf13/cobra"
)

func addRunFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Bool("no-fsck", false, "suppress both pre- and post-validation")
	flags.Bool("fsck-only", false, "run validation only; no replacement (mutually exclusive with --dry-run)")
	flags.Bool("no-lock", false, "suppress advisory locking (unsafe opt-out)")
	flags.Bool("dry-run", false, "describe replacement plans; make no mutation")
	flags.Bool("verbose", false, "enable informational progress output")
	flags.Bool("journal", false, "enable the audit journal for this run")
	flags.String("journal-path", "", "override the journal file location for this run")
	flags.String("config", "", "path to a TOML defaults file (default: "+config.DefaultConfigPath()+")")
}

// flagsFrom reads cmd's flag values into a config.Flags, tracking
// exactly which flags the user explicitly set via Flags().Changed so a
// file default is never clobbered by an unset flag's zero value.
func flagsFrom(cmd *cobra.Command, roots []string) config.Flags {
	f := cmd.Flags()
	set := map[string]bool{}
	for _, name := range []string{"no-fsck", "fsck-only", "no-lock", "dry-run", "verbose", "journal", "journal-path"} {
		if f.Changed(name) {
			set[toTOMLKey(name)] = true
		}
	}

	noFsck, _ := f.GetBool("no-fsck")
	fsckOnly, _ := f.GetBool("fsck-only")
	noLock, _ := f.GetBool("no-lock")
	dryRun, _ := f.GetBool("dry-run")
	verbose, _ := f.GetBool("verbose")
	journalEnabled, _ := f.GetBool("journal")
	journalPath, _ := f.GetString("journal-path")

	return config.Flags{
		Roots:          roots,
		NoFsck:         noFsck,
		FsckOnly:       fsckOnly,
		NoLock:         noLock,
		DryRun:         dryRun,
		Verbose:        verbose,
		JournalEnabled: journalEnabled,
		JournalPath:    journalPath,
		Set:            set,
	}
}

func toTOMLKey(flagName string) string {
	switch flagName {
	case "no-fsck":
		return "no_fsck"
	case "no-lock":
		return "no_lock"
	case "journal-path":
		return "journal_path"
	default:
		return flagName
	}
}

// execute runs one invocation against cmd's flags and args, returning
// the resulting exit code without ever calling os.Exit itself — kept
// separate from runRootCmd so tests can drive it against an in-memory
// buffer and inspect the exit code instead of the process exiting.
func execute(cmd *cobra.Command, args []string) int {
	roots := args
	if len(roots) == 0 {
		roots = []string{"."}
	}

	configPath, _ := cmd.Flags().GetString("config")
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(flagsFrom(cmd, roots), configPath)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return orchestrate.ExitInputError
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return orchestrate.ExitInputError
	}

	ctx := cmd.Context()
	if ctx == nil {
		// cmd.Context() is nil unless the command ran via Execute.
		ctx = context.Background()
	}
	summary := orchestrate.Run(ctx, cfg)

	for _, m := range summary.Messages {
		fmt.Fprintln(cmd.ErrOrStderr(), m.Text)
	}
	if cfg.Verbose || summary.ExitCode != orchestrate.ExitSuccess {
		printSummary(cmd, summary)
	}

	return summary.ExitCode
}

func runRootCmd(cmd *cobra.Command, args []string) error {
	os.Exit(execute(cmd, args))
	return nil
}

func printSummary(cmd *cobra.Command, s *orchestrate.Summary) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "repos scanned: %d\n", s.ReposScanned)
	fmt.Fprintf(w, "locks failed: %d\n", s.LocksFailed)
	fmt.Fprintf(w, "pre-validation failures: %d\n", s.PreValidationFailures)
	fmt.Fprintf(w, "groups found: %d\n", s.GroupsFound)
	fmt.Fprintf(w, "replacements attempted: %d (linked %d, rolled back %d, rollback failed %d)\n",
		s.ReplacementsAttempted, s.Linked, s.RolledBack, s.RollbackFailed)
	fmt.Fprintf(w, "bytes reclaimed (estimated): %d\n", s.BytesReclaimed)
}
