// Package scanner traverses a directory tree and groups the files it
// contains by content, producing a mapping from fast fingerprint to the
// absolute paths that share it.
//
// # Architecture Overview
//
// The scanner uses a concurrent fan-out/fan-in architecture to efficiently
// traverse directory trees while respecting system resource limits.
//
// # Concurrency Model
//
//  1. WALKER GOROUTINES (fan-out)
//     - One goroutine spawned per directory discovered
//     - Concurrency limited by a semaphore
//     - Each walker: acquires semaphore → lists directory → sends its
//       files and spawns child walkers → releases semaphore
//
//  2. COLLECTOR GOROUTINE (fan-in)
//     - Single goroutine that drains the result channel into a slice
//
//  3. MAIN GOROUTINE (orchestrator)
//     - Spawns the initial walker, waits for all walkers, then the collector
//
// Once traversal finishes, grouping (size → fingerprint → optional strong
// digest confirmation) runs single-threaded over the collected entries —
// see grouping.go.
package scanner

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/ivoronin/dupenukem/internal/cache"
	"github.com/ivoronin/dupenukem/internal/pathutil"
	"github.com/ivoronin/dupenukem/internal/progress"
)

// iconArtifact is the macOS Finder metadata file name that the validity
// filter always skips.
const iconArtifact = "Icon\r"

// Scanner walks a directory tree and groups its files by content.
//
// The scanner is designed for single-use: create with New(), call Run()
// once.
type Scanner struct {
	rootDir      string
	canonRoot    string
	excludes     map[string]bool
	workers      int
	quick        bool
	cache        *cache.Cache
	showProgress bool
	errCh        chan error

	walkerWg  sync.WaitGroup
	walkerSem Semaphore
	resultCh  chan entry
	stats     *stats
	bar       *progress.Bar
}

// New creates a Scanner rooted at rootDir. excludes holds exact absolute
// paths to skip; workers bounds concurrent directory reads; quick skips
// the strong-digest confirmation phase; cache (may be nil/disabled) holds
// previously computed fingerprints and digests keyed by file identity.
func New(rootDir string, excludes []string, workers int, quick bool, c *cache.Cache, showProgress bool, errCh chan error) (*Scanner, error) {
	canonRoot, err := filepath.EvalSymlinks(rootDir)
	if err != nil {
		return nil, err
	}

	excludeSet := make(map[string]bool, len(excludes))
	for _, e := range excludes {
		excludeSet[filepath.Clean(e)] = true
	}

	return &Scanner{
		rootDir:      rootDir,
		canonRoot:    canonRoot,
		excludes:     excludeSet,
		workers:      workers,
		quick:        quick,
		cache:        c,
		showProgress: showProgress,
		errCh:        errCh,
	}, nil
}

// stats tracks scanning progress using atomic-free counters updated only
// by the single collector goroutine.
type stats struct {
	scannedFiles int
	scannedBytes int64
	startTime    time.Time
}

func (s *stats) String() string {
	return fmt.Sprintf("Scanned %d files (%s) in %.1fs",
		s.scannedFiles, humanize.IBytes(uint64(s.scannedBytes)),
		time.Since(s.startTime).Seconds())
}

// Run walks rootDir and returns a mapping from fast fingerprint to the
// absolute paths sharing it, for every group with two or more surviving
// members.
func (s *Scanner) Run() (map[uint64][]string, error) {
	s.walkerSem = NewSemaphore(s.workers)
	s.bar = progress.New(s.showProgress, -1)
	s.resultCh = make(chan entry, 1000)

	st := &stats{startTime: time.Now()}
	s.bar.Describe(st)

	var entries []entry
	var collectorWg sync.WaitGroup
	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		for e := range s.resultCh {
			entries = append(entries, e)
			st.scannedFiles++
			st.scannedBytes += e.size
			s.bar.Describe(st)
		}
	}()

	s.walkDirectory(s.rootDir)
	s.walkerWg.Wait()
	close(s.resultCh)
	collectorWg.Wait()

	s.bar.Finish(st)

	return groupByContent(entries, s.quick, s.cache, s.errCh), nil
}

// walkDirectory spawns a goroutine to process one directory and
// recursively spawn children, bounded by the semaphore.
func (s *Scanner) walkDirectory(dir string) {
	s.walkerWg.Add(1)
	go func() {
		defer s.walkerWg.Done()

		s.walkerSem.Acquire()
		defer s.walkerSem.Release()

		files, subdirs, err := s.listDirectory(dir)
		if err != nil {
			s.sendError(err)
			return
		}

		for _, f := range files {
			s.resultCh <- f
		}
		for _, sub := range subdirs {
			s.walkDirectory(sub)
		}
	}()
}

// listDirectory reads a single directory, returning its eligible entries
// and subdirectories to recurse into.
func (s *Scanner) listDirectory(dirPath string) (files []entry, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		dirEntries, readErr := dir.ReadDir(batchSize)
		for _, de := range dirEntries {
			f, sub := s.processEntry(dirPath, de)
			if f != nil {
				files = append(files, *f)
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			}
		}
		if len(dirEntries) == 0 || readErr == io.EOF {
			break
		}
		if readErr != nil {
			return files, subdirs, readErr
		}
	}

	return files, subdirs, nil
}

// processEntry classifies one directory entry, applying the exclusion set
// and the validity filter from spec §4.3.
func (s *Scanner) processEntry(dirPath string, de os.DirEntry) (file *entry, subdir string) {
	fullPath := filepath.Join(dirPath, de.Name())
	if s.excludes[filepath.Clean(fullPath)] {
		return nil, ""
	}
	if strings.HasSuffix(fullPath, iconArtifact) {
		return nil, ""
	}

	if de.IsDir() {
		return nil, fullPath
	}

	if de.Type()&os.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(fullPath)
		if err != nil {
			s.sendError(fmt.Errorf("broken link, skipping: %s: %w", fullPath, err))
			return nil, ""
		}
		if !pathutil.WithinRootDir(s.canonRoot, target) {
			return nil, ""
		}
	} else if !de.Type().IsRegular() {
		return nil, ""
	}

	info, err := os.Stat(fullPath) // follows symlinks
	if err != nil {
		s.sendError(fmt.Errorf("broken link, skipping: %s: %w", fullPath, err))
		return nil, ""
	}

	return &entry{path: fullPath, size: info.Size(), modTime: info.ModTime()}, ""
}

func (s *Scanner) sendError(err error) {
	if s.errCh != nil {
		s.errCh <- err
	}
}
