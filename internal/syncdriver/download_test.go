package syncdriver

import (
	"context"
	"fmt"
	"testing"

	"spilled.ink/mailengine/internal/hcache"
)

const testHeaderFields = "DATE FROM SENDER SUBJECT TO CC MESSAGE-ID REFERENCES CONTENT-TYPE CONTENT-DESCRIPTION IN-REPLY-TO REPLY-TO LINES LIST-POST LIST-SUBSCRIBE LIST-UNSUBSCRIBE X-LABEL X-ORIGINAL-TO"

// fetchHeaderMsg renders the wire bytes for one "* msn FETCH (...)"
// response carrying a BODY.PEEK[HEADER.FIELDS] literal, as three
// pieces: the attribute line up to and including the literal's "{n}"
// marker, the literal payload itself (verbatim, already terminated
// internally by its own blank-line), and the closing ")".
func fetchHeaderMsg(msn, uid uint32, size int, header string) []byte {
	line := fmt.Sprintf("* %d FETCH (UID %d FLAGS (\\Seen) INTERNALDATE \"01-Jan-2024 00:00:00 +0000\" RFC822.SIZE %d BODY.PEEK[HEADER.FIELDS (%s)] {%d}\r\n",
		msn, uid, size, testHeaderFields, len(header))
	return append([]byte(line+header), []byte(")\r\n")...)
}

func TestInitialDownloadFullFetch(t *testing.T) {
	rig := newTestRig(t, Config{})
	header := "Subject: hi there\r\nFrom: a@example.com\r\nMessage-Id: <1@example.com>\r\n\r\n"

	rig.serveRaw(
		fetchHeaderMsg(1, 101, 42, header),
		[]byte("a0001 OK FETCH completed\r\n"),
	)

	strat, err := rig.d.InitialDownload(context.Background(), ServerState{UIDValidity: 5, UIDNext: 102, ExistsCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	if strat != StrategyFull {
		t.Fatalf("strategy = %v, want full", strat)
	}

	e := rig.d.Mailbox.Get(1)
	if e == nil {
		t.Fatal("expected msn 1 installed")
	}
	if e.Subject != "hi there" || e.MessageID != "<1@example.com>" {
		t.Errorf("subject/messageid = %q/%q", e.Subject, e.MessageID)
	}
	if !e.Flags.Read {
		t.Errorf("expected \\Seen to set Flags.Read")
	}
	if uidOf(e) != 101 {
		t.Errorf("uid = %d, want 101", uidOf(e))
	}

	ctx := context.Background()
	if uv, found, _ := rig.d.HC.FetchUint32(ctx, hcache.KeyUIDValidity); !found || uv != 5 {
		t.Errorf("cached uidvalidity = %d/%v", uv, found)
	}
	cachedEmail, found, err := rig.d.HC.Fetch(ctx, msgKey(101))
	if err != nil {
		t.Fatal(err)
	}
	if !found || cachedEmail.Subject != "hi there" {
		t.Errorf("header cache miss or wrong subject: %+v found=%v", cachedEmail, found)
	}
}

func TestInitialDownloadEvalCacheHit(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	cachedEmail := mailcoreEmailForTest("cached subject", 7)
	if err := rig.d.HC.Store(ctx, msgKey(7), cachedEmail, 5); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint32(ctx, hcache.KeyUIDValidity, 5); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint32(ctx, hcache.KeyUIDNext, 8); err != nil {
		t.Fatal(err)
	}

	rig.serve(`* 1 FETCH (UID 7 FLAGS (\Seen))`, `a0001 OK FETCH completed`)

	strat, err := rig.d.InitialDownload(ctx, ServerState{UIDValidity: 5, UIDNext: 8, ExistsCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	if strat != StrategyEval {
		t.Fatalf("strategy = %v, want eval", strat)
	}
	e := rig.d.Mailbox.Get(1)
	if e == nil || e.Subject != "cached subject" {
		t.Fatalf("expected cached email placed at msn 1, got %+v", e)
	}
}

func TestInitialDownloadCondstoreSkipsFlagsOnWire(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	cachedEmail := mailcoreEmailForTest("condstore cached", 7)
	if err := rig.d.HC.Store(ctx, msgKey(7), cachedEmail, 5); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint32(ctx, hcache.KeyUIDValidity, 5); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint32(ctx, hcache.KeyUIDNext, 8); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint64(ctx, hcache.KeyModSeq, 50); err != nil {
		t.Fatal(err)
	}

	rig.serve(`* 1 FETCH (UID 7)`, `a0001 OK FETCH completed`)

	strat, err := rig.d.InitialDownload(ctx, ServerState{UIDValidity: 5, UIDNext: 8, ExistsCount: 1, CondstoreOK: true})
	if err != nil {
		t.Fatal(err)
	}
	if strat != StrategyCondstore {
		t.Fatalf("strategy = %v, want condstore", strat)
	}
	e := rig.d.Mailbox.Get(1)
	if e == nil || e.Subject != "condstore cached" {
		t.Fatalf("expected cached email placed at msn 1, got %+v", e)
	}
}

func TestInitialDownloadQresyncHappyPath(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	cachedEmail := mailcoreEmailForTest("qresync cached", 9)
	if err := rig.d.HC.Store(ctx, msgKey(9), cachedEmail, 5); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint32(ctx, hcache.KeyUIDValidity, 5); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint32(ctx, hcache.KeyUIDNext, 10); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint64(ctx, hcache.KeyModSeq, 50); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreRaw(ctx, []byte(hcache.KeyUIDSeqSet), []byte("9")); err != nil {
		t.Fatal(err)
	}

	rig.serve(`a0001 OK FETCH completed`)

	strat, err := rig.d.InitialDownload(ctx, ServerState{
		UIDValidity: 5, UIDNext: 10, ExistsCount: 1,
		CondstoreOK: true, QresyncEnabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if strat != StrategyQresync {
		t.Fatalf("strategy = %v, want qresync", strat)
	}
	e := rig.d.Mailbox.Get(1)
	if e == nil || e.Subject != "qresync cached" {
		t.Fatalf("expected cached email placed at msn 1, got %+v", e)
	}
	seqset, found, err := rig.d.HC.FetchRaw(ctx, []byte(hcache.KeyUIDSeqSet))
	if err != nil {
		t.Fatal(err)
	}
	if !found || string(seqset) != "9" {
		t.Errorf("uidseqset = %q/%v", seqset, found)
	}
}

// TestInitialDownloadQresyncRetriesAsFullOnCorruption simulates a
// corrupted /UIDSEQSET cache entry (the same UID listed twice, so two
// distinct MSNs both claim it): verifyQresync must catch the resulting
// UID-hash inconsistency and retry the whole pass as a full fetch.
func TestInitialDownloadQresyncRetriesAsFullOnCorruption(t *testing.T) {
	rig := newTestRig(t, Config{})
	ctx := context.Background()

	cachedEmail := mailcoreEmailForTest("dup cached", 9)
	if err := rig.d.HC.Store(ctx, msgKey(9), cachedEmail, 5); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint32(ctx, hcache.KeyUIDValidity, 5); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint32(ctx, hcache.KeyUIDNext, 10); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreUint64(ctx, hcache.KeyModSeq, 50); err != nil {
		t.Fatal(err)
	}
	if err := rig.d.HC.StoreRaw(ctx, []byte(hcache.KeyUIDSeqSet), []byte("9,9")); err != nil {
		t.Fatal(err)
	}

	header9 := "Subject: full refetch 9\r\nMessage-Id: <9@example.com>\r\n\r\n"
	header10 := "Subject: full refetch 10\r\nMessage-Id: <10@example.com>\r\n\r\n"
	rig.serveRaw(
		[]byte("a0001 OK FETCH completed\r\n"), // placeFromQresync's CHANGEDSINCE/VANISHED command
		fetchHeaderMsg(1, 9, 10, header9),
		fetchHeaderMsg(2, 10, 20, header10),
		[]byte("a0002 OK FETCH completed\r\n"), // the retried full-fetch's FETCH 1:2
	)

	strat, err := rig.d.InitialDownload(ctx, ServerState{
		UIDValidity: 5, UIDNext: 10, ExistsCount: 2,
		CondstoreOK: true, QresyncEnabled: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if strat != StrategyFull {
		t.Fatalf("strategy = %v, want full (retried after corruption)", strat)
	}
	if rig.d.Mailbox.Get(1) == nil || rig.d.Mailbox.Get(2) == nil {
		t.Fatal("expected both MSNs installed after retry")
	}
	if uidOf(rig.d.Mailbox.Get(1)) != 9 || uidOf(rig.d.Mailbox.Get(2)) != 10 {
		t.Errorf("uids = %d/%d, want 9/10", uidOf(rig.d.Mailbox.Get(1)), uidOf(rig.d.Mailbox.Get(2)))
	}
	if _, found, _ := rig.d.HC.FetchRaw(ctx, []byte(hcache.KeyUIDSeqSet)); found {
		t.Errorf("expected /UIDSEQSET to have been invalidated")
	}
}
