// Package hcache is the per-mailbox header cache: a keyed byte store
// backed by crawshaw.io/sqlite (a sqlitex.Pool, a single table,
// OpenBlob for the large value column). The meta keys /UIDVALIDITY,
// /UIDNEXT, /MODSEQ, and /UIDSEQSET are ordinary rows in the same
// table, keyed the same way as the per-message entries.
package hcache

import (
	"context"
	"encoding/binary"
	"fmt"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"spilled.ink/mailengine/internal/mailcore"
)

// Meta key names, reserved so they never collide with a message key.
const (
	KeyUIDValidity = "/UIDVALIDITY"
	KeyUIDNext     = "/UIDNEXT"
	KeyModSeq      = "/MODSEQ"
	KeyUIDSeqSet   = "/UIDSEQSET"
)

// Cache is a handle on one mailbox's header cache. Concurrency model:
// one handle per mailbox, single-writer expected.
type Cache struct {
	dbpool  *sqlitex.Pool
	mailbox string
}

// Open opens (creating if absent) the header-cache table at path and
// returns a handle scoped to the given mailbox name.
func Open(path string, mailbox string) (*Cache, error) {
	flags := sqlite.SQLITE_OPEN_READWRITE | sqlite.SQLITE_OPEN_CREATE
	dbpool, err := sqlitex.Open(path, flags, 4)
	if err != nil {
		return nil, fmt.Errorf("hcache: open %s: %w", path, err)
	}
	c := &Cache{dbpool: dbpool, mailbox: mailbox}
	if err := c.init(); err != nil {
		dbpool.Close()
		return nil, err
	}
	return c, nil
}

func (c *Cache) init() error {
	conn := c.dbpool.Get(nil)
	defer c.dbpool.Put(conn)
	return sqlitex.ExecTransient(conn, `CREATE TABLE IF NOT EXISTS HeaderCache (
		Mailbox TEXT NOT NULL,
		Key     BLOB NOT NULL,
		Value   BLOB,
		PRIMARY KEY (Mailbox, Key)
	);`, nil)
}

// Close releases the underlying database handle.
func (c *Cache) Close() error { return c.dbpool.Close() }

// BackendName identifies the storage backend.
func (c *Cache) BackendName() string { return "crawshaw.io/sqlite" }

// FetchRaw returns the raw bytes stored under key, verbatim, used for
// the meta keys.
func (c *Cache) FetchRaw(ctx context.Context, key []byte) ([]byte, bool, error) {
	conn := c.dbpool.Get(ctx)
	if conn == nil {
		return nil, false, context.Canceled
	}
	defer c.dbpool.Put(conn)

	stmt := conn.Prep("SELECT rowid FROM HeaderCache WHERE Mailbox = $mailbox AND Key = $key;")
	stmt.SetText("$mailbox", c.mailbox)
	stmt.SetBytes("$key", key)
	found, err := stmt.Step()
	if err != nil {
		return nil, false, err
	}
	if !found {
		stmt.Reset()
		return nil, false, nil
	}
	rowID := stmt.GetInt64("rowid")
	stmt.Reset()

	blob, err := conn.OpenBlob("", "HeaderCache", "Value", rowID, false)
	if err != nil {
		return nil, false, err
	}
	defer blob.Close()

	value := make([]byte, blob.Size())
	if _, err := blob.Read(value); err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// StoreRaw stores bytes verbatim under key, used for meta keys.
func (c *Cache) StoreRaw(ctx context.Context, key, value []byte) (err error) {
	conn := c.dbpool.Get(ctx)
	if conn == nil {
		return context.Canceled
	}
	defer c.dbpool.Put(conn)
	defer sqlitex.Save(conn)(&err)

	stmt := conn.Prep(`INSERT INTO HeaderCache (Mailbox, Key, Value) VALUES ($mailbox, $key, $value)
		ON CONFLICT (Mailbox, Key) DO UPDATE SET Value = excluded.Value;`)
	stmt.SetText("$mailbox", c.mailbox)
	stmt.SetBytes("$key", key)
	stmt.SetBytes("$value", value)
	_, err = stmt.Step()
	return err
}

// Delete removes the entry under key, if present.
func (c *Cache) Delete(ctx context.Context, key []byte) error {
	conn := c.dbpool.Get(ctx)
	if conn == nil {
		return context.Canceled
	}
	defer c.dbpool.Put(conn)

	stmt := conn.Prep("DELETE FROM HeaderCache WHERE Mailbox = $mailbox AND Key = $key;")
	stmt.SetText("$mailbox", c.mailbox)
	stmt.SetBytes("$key", key)
	_, err := stmt.Step()
	return err
}

// Store serializes e (EncodeEmail, CRC32-stamped) and stores it under
// key. uidvalidity is accepted in the signature but is not separately
// persisted here: the caller is expected to have already verified
// /UIDVALIDITY for the mailbox before calling Store, since a
// UIDVALIDITY change means the header and body caches must be wiped
// and the mailbox re-downloaded from MSN 1.
func (c *Cache) Store(ctx context.Context, key []byte, e *mailcore.Email, uidvalidity uint32) error {
	return c.StoreRaw(ctx, key, EncodeEmail(e))
}

// Fetch returns an Email reconstructed from the bytes stored under
// key, verifying the CRC trailer stamped by Store. A CRC mismatch is
// reported as (nil, false, nil): a cache miss, never an error.
func (c *Cache) Fetch(ctx context.Context, key []byte) (*mailcore.Email, bool, error) {
	raw, found, err := c.FetchRaw(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}
	e, err := DecodeEmail(raw)
	if err != nil {
		return nil, false, nil
	}
	return e, true, nil
}

// FetchUint32 and FetchUint64 are small meta-key conveniences for
// /UIDVALIDITY, /UIDNEXT, and /MODSEQ.
func (c *Cache) FetchUint32(ctx context.Context, key string) (uint32, bool, error) {
	raw, found, err := c.FetchRaw(ctx, []byte(key))
	if err != nil || !found || len(raw) != 4 {
		return 0, false, err
	}
	return binary.BigEndian.Uint32(raw), true, nil
}

func (c *Cache) StoreUint32(ctx context.Context, key string, v uint32) error {
	var raw [4]byte
	binary.BigEndian.PutUint32(raw[:], v)
	return c.StoreRaw(ctx, []byte(key), raw[:])
}

func (c *Cache) FetchUint64(ctx context.Context, key string) (uint64, bool, error) {
	raw, found, err := c.FetchRaw(ctx, []byte(key))
	if err != nil || !found || len(raw) != 8 {
		return 0, false, err
	}
	return binary.BigEndian.Uint64(raw), true, nil
}

func (c *Cache) StoreUint64(ctx context.Context, key string, v uint64) error {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], v)
	return c.StoreRaw(ctx, []byte(key), raw[:])
}

// WipeMailbox deletes every entry (message keys and meta keys alike)
// for this handle's mailbox. Called when a UIDVALIDITY change means
// the header cache can no longer be trusted.
func (c *Cache) WipeMailbox(ctx context.Context) error {
	conn := c.dbpool.Get(ctx)
	if conn == nil {
		return context.Canceled
	}
	defer c.dbpool.Put(conn)

	stmt := conn.Prep("DELETE FROM HeaderCache WHERE Mailbox = $mailbox;")
	stmt.SetText("$mailbox", c.mailbox)
	_, err := stmt.Step()
	return err
}
