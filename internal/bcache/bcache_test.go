package bcache

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"crawshaw.io/iox"
)

func openTestCache(t *testing.T) *Cache {
	t.Helper()
	dir := t.TempDir()
	filer := iox.NewFiler(0)
	c, err := Open(filer, filepath.Join(dir, "bodies"))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestPutCommitGet(t *testing.T) {
	c := openTestCache(t)
	id := ID(1, 42)

	staged := c.Put(id)
	if _, err := staged.Write([]byte("body content")); err != nil {
		t.Fatal(err)
	}
	if err := staged.Commit(); err != nil {
		t.Fatal(err)
	}

	f, err := c.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "body content" {
		t.Errorf("got %q", got)
	}
}

func TestDiscardLeavesNoFile(t *testing.T) {
	c := openTestCache(t)
	id := ID(1, 1)
	staged := c.Put(id)
	staged.Write([]byte("abandoned"))
	if err := staged.Discard(); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(id); !os.IsNotExist(err) {
		t.Errorf("expected no committed file, err = %v", err)
	}
}

func TestDel(t *testing.T) {
	c := openTestCache(t)
	id := ID(1, 5)
	staged := c.Put(id)
	staged.Write([]byte("x"))
	staged.Commit()

	if err := c.Del(id); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(id); !os.IsNotExist(err) {
		t.Errorf("expected removed, err = %v", err)
	}
	if err := c.Del(id); err != nil {
		t.Errorf("Del of missing entry should be a no-op, got %v", err)
	}
}

// After a simulated server UIDVALIDITY change, no key "{old_uv}-*"
// remains after Clean.
func TestCleanWipesObsoleteUIDValidity(t *testing.T) {
	c := openTestCache(t)

	old := c.Put(ID(1, 10))
	old.Write([]byte("old"))
	old.Commit()

	fresh := c.Put(ID(2, 10))
	fresh.Write([]byte("fresh"))
	fresh.Commit()

	if err := c.Clean(2, map[uint32]bool{10: true}); err != nil {
		t.Fatal(err)
	}

	if _, err := c.Get(ID(1, 10)); !os.IsNotExist(err) {
		t.Errorf("expected old uidvalidity entry to be cleaned")
	}
	if _, err := c.Get(ID(2, 10)); err != nil {
		t.Errorf("expected current uidvalidity entry to survive, err = %v", err)
	}
}

func TestCleanRemovesDeadUID(t *testing.T) {
	c := openTestCache(t)
	live := c.Put(ID(1, 1))
	live.Write([]byte("a"))
	live.Commit()
	dead := c.Put(ID(1, 2))
	dead.Write([]byte("b"))
	dead.Commit()

	if err := c.Clean(1, map[uint32]bool{1: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(ID(1, 2)); !os.IsNotExist(err) {
		t.Errorf("expected uid 2 to be removed (absent from uid_hash)")
	}
	if _, err := c.Get(ID(1, 1)); err != nil {
		t.Errorf("expected uid 1 to survive, err = %v", err)
	}
}

func TestListSkipsStagingFiles(t *testing.T) {
	c := openTestCache(t)
	committed := c.Put(ID(1, 1))
	committed.Write([]byte("a"))
	committed.Commit()

	staged := c.Put(ID(1, 2))
	staged.Write([]byte("b"))
	// leave uncommitted

	var seen []string
	if err := c.List(func(id string) error {
		seen = append(seen, id)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || seen[0] != ID(1, 1) {
		t.Errorf("List = %v, want only %s", seen, ID(1, 1))
	}
	staged.Discard()
}
