package scanner

import (
	"fmt"

	"github.com/ivoronin/dupenukem/internal/cache"
	"github.com/ivoronin/dupenukem/internal/hashutil"
)

// groupByContent runs the size → fingerprint → (optional) strong-digest
// confirmation pipeline from spec §4.3 over the walker's collected
// entries, returning a mapping from fast fingerprint to the paths sharing
// it. Singleton groups are discarded at every stage.
func groupByContent(entries []entry, quick bool, c *cache.Cache, errCh chan error) map[uint64][]string {
	bySize := make(map[int64][]entry, len(entries))
	for _, e := range entries {
		bySize[e.size] = append(bySize[e.size], e)
	}

	byFingerprint := make(map[uint64][]entry)
	for _, group := range bySize {
		if len(group) < 2 {
			continue
		}
		for _, e := range group {
			fp, err := fingerprintOf(e, c)
			if err != nil {
				sendError(errCh, fmt.Errorf("hashing %s: %w", e.path, err))
				continue
			}
			byFingerprint[fp] = append(byFingerprint[fp], e)
		}
	}

	result := make(map[uint64][]string)
	for fp, group := range byFingerprint {
		if len(group) < 2 {
			continue
		}
		if !quick {
			if !confirmDigest(group, c, errCh) {
				continue
			}
		}
		paths := make([]string, len(group))
		for i, e := range group {
			paths[i] = e.path
		}
		result[fp] = paths
	}

	return result
}

func fingerprintOf(e entry, c *cache.Cache) (uint64, error) {
	if c != nil {
		if fp, ok := c.LookupFingerprint(e.path, e.size, e.modTime); ok {
			return fp, nil
		}
	}
	fp, err := hashutil.FastFingerprint(e.path)
	if err != nil {
		return 0, err
	}
	if c != nil {
		c.StoreFingerprint(e.path, e.size, e.modTime, fp)
	}
	return fp, nil
}

// confirmDigest computes the strong digest for every member of group and
// reports whether they all agree, treating a disagreement as a
// fingerprint collision (the whole group is then dropped by the caller).
func confirmDigest(group []entry, c *cache.Cache, errCh chan error) bool {
	var want string
	for i, e := range group {
		digest, err := digestOf(e, c)
		if err != nil {
			sendError(errCh, fmt.Errorf("hashing %s: %w", e.path, err))
			return false
		}
		if i == 0 {
			want = digest
			continue
		}
		if digest != want {
			return false
		}
	}
	return true
}

func digestOf(e entry, c *cache.Cache) (string, error) {
	if c != nil {
		if d, ok := c.LookupDigest(e.path, e.size, e.modTime); ok {
			return d, nil
		}
	}
	d, err := hashutil.StrongDigest(e.path)
	if err != nil {
		return "", err
	}
	if c != nil {
		c.StoreDigest(e.path, e.size, e.modTime, d)
	}
	return d, nil
}

func sendError(errCh chan error, err error) {
	if errCh != nil {
		errCh <- err
	}
}
