// Package cache provides a persistent, self-cleaning store mapping a
// file's (path, size, mtime) identity to its previously computed fast
// fingerprint and strong digest, so repeated scans of an unchanged tree
// skip re-hashing.
package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	fingerprintBucket = "fingerprints"
	digestBucket      = "digests"
	digestSize        = 32 // sha256.Size
)

// Cache provides persistent caching of per-file hash results using BoltDB.
// It is self-cleaning: each run opens the existing database read-only and
// writes to a fresh one, so only entries actually looked up this run
// survive into the next — stale entries for files that were removed or
// renamed are dropped for free.
type Cache struct {
	readDB  *bolt.DB // existing cache, opened read-only
	writeDB *bolt.DB // new cache being written; BoltDB's file lock on this
	// path also prevents two instances from racing on the same cache file
	path    string
	enabled bool
}

// Open opens path's existing cache for reading and creates a new cache
// file for writing. Passing an empty path returns a disabled cache whose
// methods are all no-ops, used when the caller did not request caching.
func Open(path string) (*Cache, error) {
	if path == "" {
		return &Cache{enabled: false}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	c := &Cache{path: path, enabled: true}

	if _, statErr := os.Stat(path); statErr == nil {
		readDB, err := bolt.Open(path, 0o600, &bolt.Options{ReadOnly: true, Timeout: 1 * time.Second})
		if err == nil {
			c.readDB = readDB
		}
	}

	newPath := path + ".new"
	writeDB, err := bolt.Open(newPath, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("create new cache (locked by another instance?): %w", err)
	}
	c.writeDB = writeDB

	if err := c.writeDB.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(fingerprintBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(digestBucket))
		return err
	}); err != nil {
		_ = c.Close()
		return nil, err
	}

	return c, nil
}

// Close closes both databases and, if the write database closed cleanly,
// atomically replaces the old cache file with the new one.
func (c *Cache) Close() error {
	var firstErr error
	if c.readDB != nil {
		if err := c.readDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.writeDB != nil {
		if err := c.writeDB.Close(); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		} else if err := os.Rename(c.path+".new", c.path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

const keyVersion byte = 1

// makeKey builds the deterministic lookup key shared by both buckets:
// ver(1) + path + NUL + size(8) + mtime_unixnano(8).
func makeKey(path string, size int64, modTime time.Time) []byte {
	buf := new(bytes.Buffer)
	buf.WriteByte(keyVersion)
	buf.WriteString(path)
	buf.WriteByte(0)
	_ = binary.Write(buf, binary.BigEndian, size)
	_ = binary.Write(buf, binary.BigEndian, modTime.UnixNano())
	return buf.Bytes()
}

// LookupFingerprint returns the cached fast fingerprint for (path, size,
// modTime), if any. A hit is copied into the write database so it
// survives into the next run's cache file.
func (c *Cache) LookupFingerprint(path string, size int64, modTime time.Time) (uint64, bool) {
	if !c.enabled || c.readDB == nil {
		return 0, false
	}

	key := makeKey(path, size, modTime)
	var value []byte
	_ = c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(fingerprintBucket))
		if b == nil {
			return nil
		}
		if data := b.Get(key); len(data) == 8 {
			value = append([]byte(nil), data...)
		}
		return nil
	})
	if value == nil {
		return 0, false
	}

	fp := binary.BigEndian.Uint64(value)
	c.StoreFingerprint(path, size, modTime, fp)
	return fp, true
}

// StoreFingerprint records path's fast fingerprint in the write database.
func (c *Cache) StoreFingerprint(path string, size int64, modTime time.Time, fp uint64) {
	if !c.enabled || c.writeDB == nil {
		return
	}
	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, fp)
	_ = c.writeDB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(fingerprintBucket)).Put(makeKey(path, size, modTime), value)
	})
}

// LookupDigest returns the cached strong digest (lowercase hex) for
// (path, size, modTime), if any.
func (c *Cache) LookupDigest(path string, size int64, modTime time.Time) (string, bool) {
	if !c.enabled || c.readDB == nil {
		return "", false
	}

	key := makeKey(path, size, modTime)
	var raw []byte
	_ = c.readDB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(digestBucket))
		if b == nil {
			return nil
		}
		if data := b.Get(key); len(data) == digestSize {
			raw = append([]byte(nil), data...)
		}
		return nil
	})
	if raw == nil {
		return "", false
	}

	digest := hex.EncodeToString(raw)
	c.StoreDigest(path, size, modTime, digest)
	return digest, true
}

// StoreDigest records path's strong digest in the write database.
func (c *Cache) StoreDigest(path string, size int64, modTime time.Time, digest string) {
	if !c.enabled || c.writeDB == nil {
		return
	}
	raw, err := hex.DecodeString(digest)
	if err != nil || len(raw) != digestSize {
		return
	}
	_ = c.writeDB.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(digestBucket)).Put(makeKey(path, size, modTime), raw)
	})
}
