// The mailenginectl command drives one mailbox through the public
// mailbox facade from the command line: resolve a path, open the
// mailbox (running the initial download pass), then check or sync it.
//
// usage: mailenginectl -pass PASS imap://user@host/INBOX check
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"crawshaw.io/iox"

	"spilled.ink/mailengine/internal/imapauth"
	"spilled.ink/mailengine/internal/syncdriver"
	"spilled.ink/mailengine/mailbox"
)

var filer *iox.Filer
var acct *mailbox.Account
var mb *mailbox.Mailbox

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-pass PASS] [-cachedir DIR] [-insecure] mailbox-url command\n\ncommands:\n  check    issue NOOP, report what changed\n  sync     apply deferred reopen, push flags, expunge\n\nmailbox-url: imap[s]://[user@]host[:port]/mailbox\n", os.Args[0])
		flag.PrintDefaults()
	}
	flagPass := flag.String("pass", "", "account password")
	flagCacheDir := flag.String("cachedir", "", "directory for the header/body cache (default: a temp dir)")
	flagInsecure := flag.Bool("insecure", false, "skip TLS certificate verification")
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		exit(2)
	}
	rawURL, command := flag.Arg(0), flag.Arg(1)

	target, err := mailbox.PathProbe(rawURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		exit(2)
	}
	if target.Scheme != "imap" && target.Scheme != "imaps" {
		fmt.Fprintf(os.Stderr, "%s: unsupported scheme %q\n", os.Args[0], target.Scheme)
		exit(2)
	}

	ctx := context.Background()
	filer = iox.NewFiler(0)

	cacheDir := *flagCacheDir
	if cacheDir == "" {
		cacheDir, err = os.MkdirTemp("", "mailenginectl-")
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
			exit(1)
		}
	}
	if err := os.MkdirAll(cacheDir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[0], err)
		exit(1)
	}

	acct, err = mailbox.OpenAccount(ctx, mailbox.DialOptions{
		Addr:      target.Host + ":" + target.Port,
		UseTLS:    target.UseTLS,
		StartTLS:  !target.UseTLS,
		TLSConfig: &tls.Config{InsecureSkipVerify: *flagInsecure},
		Creds:     imapauth.Credentials{User: target.User, Pass: *flagPass},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: open account: %v\n", os.Args[0], err)
		exit(1)
	}

	mb, err = mailbox.Open(ctx, acct, target.Path, mailbox.OpenConfig{
		CacheDir: filepath.Join(cacheDir, filepath.FromSlash(target.Path)),
		Filer:    filer,
		Driver:   syncdriver.Config{Peek: true},
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: open mailbox: %v\n", os.Args[0], err)
		exit(1)
	}

	switch command {
	case "check":
		if err := cmdCheck(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "%s check: %v\n", os.Args[0], err)
			exit(1)
		}
	case "sync":
		if err := cmdSync(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "%s sync: %v\n", os.Args[0], err)
			exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", os.Args[0], command)
		flag.Usage()
		exit(2)
	}
	exit(0)
}

func cmdCheck(ctx context.Context) error {
	status, err := mb.Check(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("status: %d\ncount=%d unread=%d flagged=%d deleted=%d\n",
		status, mb.Core.Count, mb.Core.Unread, mb.Core.Flagged, mb.Core.Deleted)
	return nil
}

func cmdSync(ctx context.Context) error {
	st, err := mb.Sync(ctx, true)
	if err != nil {
		return err
	}
	fmt.Printf("reopened=%v flags_pushed=%d expunged=%d\ncount=%d unread=%d flagged=%d deleted=%d size=%d\n",
		st.Reopened, len(st.FlagsPushed), st.Expunged,
		st.Count, st.Unread, st.Flagged, st.Deleted, st.Size)
	return nil
}

// exit tears down whatever was opened before calling os.Exit, the
// same pattern the spillbox command uses for its own package-level
// db/filer handles.
func exit(code int) {
	if mb != nil {
		mb.Close()
	}
	if acct != nil {
		acct.Close()
	}
	if filer != nil {
		filer.Shutdown(context.Background())
	}
	os.Exit(code)
}
