package syncdriver

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"crawshaw.io/iox"
)

func newTestFiler(t *testing.T) *iox.Filer {
	t.Helper()
	filer := iox.NewFiler(0)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		filer.Shutdown(ctx)
	})
	return filer
}

func TestAppendRewritesBareLF(t *testing.T) {
	// rewriteBareLF is exercised directly by Append's staging pass; this
	// confirms the byte count reported in the literal's "{n}" marker
	// matches a bare-LF body once every lone "\n" has grown a "\r".
	src := "Subject: x\nFrom: a@example.com\r\nTo: b@example.com\n\nbody\n"
	var dst bytes.Buffer
	n, err := rewriteBareLF(strings.NewReader(src), &dst)
	if err != nil {
		t.Fatal(err)
	}
	want := "Subject: x\r\nFrom: a@example.com\r\nTo: b@example.com\r\n\r\nbody\r\n"
	if dst.String() != want {
		t.Fatalf("rewritten = %q, want %q", dst.String(), want)
	}
	if n != int64(len(want)) {
		t.Errorf("n = %d, want %d", n, len(want))
	}
}

func TestAppendSuccess(t *testing.T) {
	rig := newTestRig(t, Config{})
	filer := newTestFiler(t)

	rig.serve(`+ go ahead`, `a0001 OK APPEND completed`)

	err := rig.d.Append(context.Background(), filer, "Sent",
		strings.NewReader("Subject: hi\nbody\n"), []string{`\Seen`}, "01-Jan-2024 00:00:00 +0000")
	if err != nil {
		t.Fatal(err)
	}
}

func TestAppendTryCreate(t *testing.T) {
	rig := newTestRig(t, Config{})
	filer := newTestFiler(t)

	rig.serve(`+ go ahead`, `a0001 NO [TRYCREATE] no such mailbox`)

	err := rig.d.Append(context.Background(), filer, "Archive",
		strings.NewReader("Subject: hi\nbody\n"), nil, "01-Jan-2024 00:00:00 +0000")
	if err != ErrTryCreate {
		t.Fatalf("err = %v, want ErrTryCreate", err)
	}
}

func TestAppendServerError(t *testing.T) {
	rig := newTestRig(t, Config{})
	filer := newTestFiler(t)

	rig.serve(`+ go ahead`, `a0001 NO disk quota exceeded`)

	err := rig.d.Append(context.Background(), filer, "Sent",
		strings.NewReader("Subject: hi\nbody\n"), nil, "01-Jan-2024 00:00:00 +0000")
	if err == nil {
		t.Fatal("expected error")
	}
	if err == ErrTryCreate {
		t.Fatalf("expected plain error, not ErrTryCreate")
	}
}

func TestImapQuoteMailbox(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"INBOX", `"INBOX"`},
		{`Archive\Receipts`, `"Archive\\Receipts"`},
		{`say "hi"`, `"say \"hi\""`},
	}
	for _, tt := range tests {
		if got := imapQuoteMailbox(tt.in); got != tt.want {
			t.Errorf("imapQuoteMailbox(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
