package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ivoronin/dupenukem/internal/errs"
	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
)

// verbosity counts -v occurrences. Any nonzero count makes apply echo each
// action as it is performed; there are no separate log levels, so counts
// above 1 behave the same as 1, and find and validate do not read it.
var verbosity int

func main() {
	os.Exit(run())
}

func run() int {
	root := &cobra.Command{
		Use:           "dupenukem",
		Short:         "Find, review, and apply duplicate-file snapshots",
		Version:       version + " (" + commit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "increase verbosity (repeatable)")

	root.AddCommand(newFindCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newApplyCmd())

	if err := root.Execute(); err != nil {
		printErr(err)
		return 1
	}
	return 0
}

// printErr renders an error per spec §7: a *errs.Error of Kind Cmd prints
// as a usage complaint, everything else prints its debug form.
func printErr(err error) {
	var e *errs.Error
	if errors.As(err, &e) && e.Kind == errs.Cmd {
		fmt.Fprintf(os.Stderr, "Command Error: %s\n", e.Msg)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
