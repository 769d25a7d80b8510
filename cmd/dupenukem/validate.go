package main

import (
	"fmt"
	"os"

	"github.com/ivoronin/dupenukem/internal/errs"
	"github.com/ivoronin/dupenukem/internal/snapshot"
	"github.com/ivoronin/dupenukem/internal/validator"
	"github.com/spf13/cobra"
)

type validateOptions struct {
	stdin             bool
	allowFullDeletion bool
}

func newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Check a snapshot for structural and filesystem-state validity",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			path, err := snapshotArg(args, opts.stdin)
			if err != nil {
				return err
			}
			return runValidate(path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.stdin, "stdin", false, "read the snapshot from standard input")
	cmd.Flags().BoolVar(&opts.allowFullDeletion, "allow-full-deletion", false, "allow a group with no keep entry, if every entry is delete")

	return cmd
}

// snapshotArg resolves the validate/apply commands' shared "<path> |
// --stdin" argument, rejecting both-or-neither.
func snapshotArg(args []string, stdin bool) (string, error) {
	switch {
	case stdin && len(args) > 0:
		return "", errs.New(errs.Cmd, "pass either a path or --stdin, not both")
	case stdin:
		return "", nil
	case len(args) == 1:
		return args[0], nil
	default:
		return "", errs.New(errs.Cmd, "expected a snapshot path or --stdin")
	}
}

func loadSnapshot(path string, stdin bool) (*snapshot.Snapshot, error) {
	lines, err := readSnapshotInput(path, stdin)
	if err != nil {
		return nil, err
	}
	s, err := snapshot.Parse(lines)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func runValidate(path string, opts *validateOptions) error {
	s, err := loadSnapshot(path, opts.stdin)
	if err != nil {
		fmt.Println("Snapshot is invalid!")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	actions, err := validator.Validate(s, opts.allowFullDeletion)
	if err != nil {
		fmt.Println("Snapshot is invalid!")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	pending := pendingCount(actions)

	fmt.Println("Snapshot is valid!")
	fmt.Printf("%d pending action(s)\n", pending)
	return nil
}
