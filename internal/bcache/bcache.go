// Package bcache is the per-account message body cache: a
// content-addressed on-disk blob store keyed by
// "{uidvalidity}-{uid}", one ordinary file per entry, staged writes
// committed with os.Rename.
//
// Writes land in a Filer-backed iox.BufferFile first, so a body never
// touches its final path until it is complete; a crash mid-write
// leaves the previous committed state (or no entry) visible, never a
// half-written file.
package bcache

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"crawshaw.io/iox"
)

// Cache is a handle on one mailbox's on-disk body store.
type Cache struct {
	dir   string
	filer *iox.Filer
}

// Open returns a Cache rooted at dir (created if absent). Callers
// typically derive dir from the account and munged mailbox name so
// each mailbox gets its own body store.
func Open(filer *iox.Filer, dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("bcache: mkdir %s: %w", dir, err)
	}
	return &Cache{dir: dir, filer: filer}, nil
}

// ID formats the content-addressed key for a message:
// "{uidvalidity}-{uid}", ASCII, decimal.
func ID(uidvalidity, uid uint32) string {
	return fmt.Sprintf("%d-%d", uidvalidity, uid)
}

func (c *Cache) path(id string) string {
	return filepath.Join(c.dir, id)
}

// Get opens the committed file for id for reading. The caller must
// Close it.
func (c *Cache) Get(id string) (*os.File, error) {
	f, err := os.Open(c.path(id))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Staged is a body-cache entry being written: an iox.BufferFile the
// caller streams content into, committed or discarded explicitly.
type Staged struct {
	id    string
	cache *Cache
	buf   *iox.BufferFile
}

// Put returns a staging handle for id. The caller writes the body
// into Staged, then calls Commit (or Discard to abandon it).
func (c *Cache) Put(id string) *Staged {
	return &Staged{id: id, cache: c, buf: c.filer.BufferFile(0)}
}

func (s *Staged) Write(p []byte) (int, error) { return s.buf.Write(p) }

// Commit flushes the staged content to a temp file in the cache
// directory and atomically renames it onto id's final path.
func (s *Staged) Commit() error {
	defer s.buf.Close()

	if _, err := s.buf.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("bcache: seek staged %s: %w", s.id, err)
	}

	tmp, err := os.CreateTemp(s.cache.dir, ".stage-"+s.id+"-*")
	if err != nil {
		return fmt.Errorf("bcache: create temp for %s: %w", s.id, err)
	}
	tmpName := tmp.Name()
	if _, err := io.Copy(tmp, s.buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("bcache: stage %s: %w", s.id, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.cache.path(s.id)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("bcache: commit %s: %w", s.id, err)
	}
	return nil
}

// Discard abandons the staged content without touching the final
// path.
func (s *Staged) Discard() error { return s.buf.Close() }

// Del removes the committed entry for id, if present.
func (c *Cache) Del(id string) error {
	err := os.Remove(c.path(id))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// List enumerates every committed entry id, calling cb for each.
func (c *Cache) List(cb func(id string) error) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if ent.IsDir() || strings.HasPrefix(ent.Name(), ".stage-") {
			continue
		}
		if err := cb(ent.Name()); err != nil {
			return err
		}
	}
	return nil
}

// Clean sweeps the directory, removing any entry whose UIDVALIDITY
// does not match currentUIDValidity or whose UID is absent from
// liveUIDs.
func (c *Cache) Clean(currentUIDValidity uint32, liveUIDs map[uint32]bool) error {
	return c.List(func(id string) error {
		uv, uid, ok := parseID(id)
		if !ok {
			return nil
		}
		if uv != currentUIDValidity || !liveUIDs[uid] {
			return c.Del(id)
		}
		return nil
	})
}

func parseID(id string) (uidvalidity, uid uint32, ok bool) {
	a, b, found := strings.Cut(id, "-")
	if !found {
		return 0, 0, false
	}
	uv, err1 := strconv.ParseUint(a, 10, 32)
	u, err2 := strconv.ParseUint(b, 10, 32)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return uint32(uv), uint32(u), true
}
