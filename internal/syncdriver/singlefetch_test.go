package syncdriver

import (
	"context"
	"fmt"
	"testing"

	"spilled.ink/mailengine/internal/bcache"
)

func TestFetchBodyStreamsAndReparsesHeader(t *testing.T) {
	rig := newTestRig(t, Config{Peek: true})

	body := "Subject: full body\r\nFrom: a@example.com\r\nMessage-Id: <1@example.com>\r\nStatus: R\r\n\r\nhello\r\n"
	line1 := fmt.Sprintf("* 1 FETCH (UID 101 BODY.PEEK[] {%d}\r\n", len(body))
	rig.serveRaw(
		[]byte(line1),
		[]byte(body),
		[]byte(" FLAGS (\\Seen))\r\n"),
		[]byte("a0001 OK FETCH completed\r\n"),
	)

	e := mailcoreEmailForTest("stub", 101)
	if err := rig.d.FetchBody(context.Background(), e, 5); err != nil {
		t.Fatal(err)
	}

	if e.Subject != "full body" || e.MessageID != "<1@example.com>" {
		t.Errorf("subject/messageid = %q/%q", e.Subject, e.MessageID)
	}
	if !e.Flags.Read {
		t.Errorf("expected FLAGS (\\Seen) and Status: R to both leave Flags.Read true")
	}

	f, err := rig.d.BC.Get(bcache.ID(5, 101))
	if err != nil {
		t.Fatalf("expected body committed to cache: %v", err)
	}
	f.Close()
}

func TestFetchBodyStatusHeaderOverridesUnreadFlag(t *testing.T) {
	rig := newTestRig(t, Config{Peek: true})

	// A "Status: RO" header (already read) but no \Seen on the wire:
	// the header re-parse should still leave Flags.Read true since
	// Status takes precedence after FLAGS is applied.
	body := "Subject: hi\r\nStatus: RO\r\n\r\nhello\r\n"
	line1 := fmt.Sprintf("* 1 FETCH (UID 101 BODY.PEEK[] {%d}\r\n", len(body))
	rig.serveRaw(
		[]byte(line1),
		[]byte(body),
		[]byte(" FLAGS ())\r\n"),
		[]byte("a0001 OK FETCH completed\r\n"),
	)

	e := mailcoreEmailForTest("stub", 101)
	if err := rig.d.FetchBody(context.Background(), e, 5); err != nil {
		t.Fatal(err)
	}
	if !e.Flags.Read {
		t.Errorf("expected Status: RO to set Flags.Read")
	}
}

func TestFetchBodyNoUIDFails(t *testing.T) {
	rig := newTestRig(t, Config{})
	e := mailcoreEmailForTest("stub", 0)
	if err := rig.d.FetchBody(context.Background(), e, 5); err == nil {
		t.Fatal("expected error for email with no UID")
	}
}
