package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ivoronin/dupenukem/internal/executor"
	"github.com/ivoronin/dupenukem/internal/validator"
	"github.com/spf13/cobra"
)

type applyOptions struct {
	stdin             bool
	dryRun            bool
	allowFullDeletion bool
	backupDir         string
	noProgress        bool
}

func newApplyCmd() *cobra.Command {
	opts := &applyOptions{}

	cmd := &cobra.Command{
		Use:   "apply [path]",
		Short: "Validate a snapshot and perform its pending actions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path, err := snapshotArg(args, opts.stdin)
			if err != nil {
				return err
			}
			return runApply(path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "read the snapshot from standard input")
	cmd.Flags().BoolVarP(&opts.dryRun, "dry-run", "n", false, "print the plan without making changes")
	cmd.Flags().BoolVar(&opts.allowFullDeletion, "allow-full-deletion", false, "allow a group with no keep entry, if every entry is delete")
	cmd.Flags().StringVar(&opts.backupDir, "backup-dir", "", "copy removed content here before deleting (default: ~/.dupenukem/backups/<timestamp>)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")

	return cmd
}

func runApply(path string, opts *applyOptions) error {
	s, err := loadSnapshot(path, opts.stdin)
	if err != nil {
		return err
	}

	actions, err := validator.Validate(s, opts.allowFullDeletion)
	if err != nil {
		return err
	}

	pending := pendingCount(actions)
	if pending == 0 {
		fmt.Println("Nothing to do.")
		return nil
	}

	if !opts.dryRun {
		if !confirm(fmt.Sprintf("Apply %d pending action(s) to %s?", pending, s.RootDir)) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	backupDir := opts.backupDir
	if backupDir == "" && !opts.dryRun {
		backupDir = defaultBackupDir(time.Now())
	}

	stats, err := executor.Execute(actions, executor.Options{
		RootDir:      s.RootDir,
		DryRun:       opts.dryRun,
		BackupDir:    backupDir,
		Verbose:      verbosity > 0,
		ShowProgress: !opts.noProgress,
	})
	if stats != nil {
		fmt.Fprintln(os.Stderr, stats.String())
	}
	return err
}

func pendingCount(actions []validator.Action) int {
	n := 0
	for _, a := range actions {
		if a.Kind != validator.ActionKeep && !a.IsNoOp {
			n++
		}
	}
	return n
}
