// Package cache keeps compiled units on disk, keyed by a digest of the compile
// request and validated against the content of every source file that fed it.
package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dbsmedya/protomod/internal/registry"
)

// Current schema version; increment when Payload changes shape.
const schemaVersion uint16 = 1

// appName names the directory under the user cache root.
const appName = "protomod"

// Digest is a SHA-256 value.
type Digest [32]byte

// String returns the hex form of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d was never set.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// Key digests parts into a cache key. Parts are length-prefixed so that
// ("ab", "c") and ("a", "bc") differ.
func Key(parts ...string) Digest {
	h := sha256.New()
	var n [8]byte
	for _, p := range parts {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// HashFile digests the content of the file at path.
func HashFile(path string) (Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Digest{}, err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return Digest{}, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d, nil
}

// Payload is one cached compile result.
type Payload struct {
	Schema uint16

	// Request
	Name   string   // What was compiled, for humans inspecting the cache
	Inputs []string // Requested files as given

	// Every on-disk source the result depends on, with its digest at compile time
	FilePaths  []string
	FileHashes []Digest

	// Result; exactly one is set depending on the compile mode
	Units []registry.CompiledUnit
	Set   []byte
}

// Fresh reports whether every recorded source still has its recorded digest.
func (p *Payload) Fresh() bool {
	if p.Schema != schemaVersion || len(p.FilePaths) != len(p.FileHashes) {
		return false
	}
	for i, path := range p.FilePaths {
		d, err := HashFile(path)
		if err != nil || d != p.FileHashes[i] {
			return false
		}
	}
	return true
}

// Record digests paths into p. Files that cannot be read are an error: a
// payload that cannot be validated must not be stored.
func (p *Payload) Record(paths []string) error {
	p.FilePaths = make([]string, 0, len(paths))
	p.FileHashes = make([]Digest, 0, len(paths))
	for _, path := range paths {
		d, err := HashFile(path)
		if err != nil {
			return err
		}
		p.FilePaths = append(p.FilePaths, path)
		p.FileHashes = append(p.FileHashes, d)
	}
	return nil
}

// DiskCache stores payloads as msgpack files.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// Open initializes a disk cache at dir, or under the user cache directory
// ($XDG_CACHE_HOME or ~/.cache) when dir is empty.
func Open(dir string) (*DiskCache, error) {
	if dir == "" {
		base := os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, err
			}
			base = filepath.Join(home, ".cache")
		}
		dir = filepath.Join(base, appName)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *DiskCache) Dir() string {
	return c.dir
}

func (c *DiskCache) pathFor(key Digest) string {
	return filepath.Join(c.dir, "units", key.String()+".mp")
}

// Put serializes and writes a payload. The write is atomic: readers see the
// old payload or the new one, never a partial file.
func (c *DiskCache) Put(key Digest, payload *Payload) (err error) {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	payload.Schema = schemaVersion

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(payload); err != nil {
		return fmt.Errorf("failed to encode cache payload: %w", err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), p)
}

// Get reads a payload. A missing entry or one written by another schema
// version reports false without error.
func (c *DiskCache) Get(key Digest, out *Payload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, fmt.Errorf("failed to decode cache payload %s: %w", key, err)
	}
	if out.Schema != schemaVersion {
		return false, nil
	}
	return true, nil
}

// Delete removes the payload stored under key, if any.
func (c *DiskCache) Delete(key Digest) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.Remove(c.pathFor(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// DropAll invalidates the whole cache.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if err := os.RemoveAll(old); err != nil {
		return err
	}
	return os.MkdirAll(c.dir, 0o755)
}
