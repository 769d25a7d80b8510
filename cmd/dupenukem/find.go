package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/ivoronin/dupenukem/internal/cache"
	"github.com/ivoronin/dupenukem/internal/errs"
	"github.com/ivoronin/dupenukem/internal/scanner"
	"github.com/ivoronin/dupenukem/internal/snapshot"
	"github.com/spf13/cobra"
)

type findOptions struct {
	excludes    []string
	quick       bool
	skipDeduped bool
	workers     int
	cacheFile   string
	noProgress  bool
}

func newFindCmd() *cobra.Command {
	opts := &findOptions{workers: runtime.NumCPU()}

	cmd := &cobra.Command{
		Use:   "find <rootdir>",
		Short: "Scan a directory tree and print a duplicate-file snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runFind(args[0], opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.excludes, "exclude", "e", nil, "path (relative to rootdir) to exclude, repeatable")
	cmd.Flags().BoolVar(&opts.quick, "quick", false, "trust the fast fingerprint, skip strong-digest confirmation")
	cmd.Flags().BoolVar(&opts.skipDeduped, "skip-deduped", false, "omit groups already in keep+symlink form")
	cmd.Flags().IntVarP(&opts.workers, "workers", "w", opts.workers, "directory-listing concurrency")
	cmd.Flags().StringVar(&opts.cacheFile, "cache-file", "", "path to a hash cache file (enables caching across runs)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "disable the progress spinner")

	return cmd
}

func runFind(rootArg string, opts *findOptions) error {
	root, err := resolveRoot(rootArg)
	if err != nil {
		return err
	}
	excludes := resolveExcludes(root, opts.excludes)

	hashCache, err := cache.Open(opts.cacheFile)
	if err != nil {
		return errs.Wrap(errs.Io, err)
	}
	defer func() { _ = hashCache.Close() }()

	errCh := make(chan error, 100)
	go drainErrors(errCh)

	showProgress := !opts.noProgress
	s, err := scanner.New(root, excludes, opts.workers, opts.quick, hashCache, showProgress, errCh)
	if err != nil {
		return errs.Validation(errs.RootDir, root, err.Error())
	}
	groups, err := s.Run()
	close(errCh)
	if err != nil {
		return err
	}

	snap := &snapshot.Snapshot{
		RootDir:     root,
		GeneratedAt: time.Now(),
		Duplicates:  map[snapshot.Checksum][]*snapshot.FilePath{},
	}
	for fp, paths := range groups {
		fps := make([]*snapshot.FilePath, 0, len(paths))
		for _, p := range paths {
			sfp, err := snapshot.NewScannedFilePath(p)
			if err != nil {
				fmt.Fprintf(os.Stderr, "warning: %v\n", err)
				continue
			}
			fps = append(fps, sfp)
		}
		if len(fps) < 2 {
			continue
		}
		if opts.skipDeduped && alreadyDeduped(fps) {
			continue
		}
		snap.Duplicates[snapshot.NewChecksum(fp)] = fps
	}

	fmt.Println(strings.Join(snapshot.Render(snap), "\n"))
	return nil
}

// alreadyDeduped reports whether a group is already in the "one keep, rest
// symlink, zero delete" shape --skip-deduped filters out. This is a
// structural check only — it does not verify the symlinks actually point
// at the keeper.
func alreadyDeduped(paths []*snapshot.FilePath) bool {
	keeps := 0
	for _, fp := range paths {
		switch fp.Op.Kind {
		case snapshot.OpKeep:
			keeps++
		case snapshot.OpDelete:
			return false
		}
	}
	return keeps == 1
}
