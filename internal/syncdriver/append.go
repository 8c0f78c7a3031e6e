package syncdriver

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"crawshaw.io/iox"

	"spilled.ink/mailengine/internal/imapcmd"
)

// ErrTryCreate is returned by Append/Copy when the server rejected the
// destination with "[TRYCREATE]": the caller (the mailbox facade) may
// create the mailbox and retry the same call once.
var ErrTryCreate = fmt.Errorf("syncdriver: server returned TRYCREATE")

// Append stages src (rewriting any bare LF to CRLF) into a buffer
// file, counting the rewritten length on that first pass, then streams
// it as the literal body of an APPEND command on a second pass: `APPEND
// {mbox} ({flags}) "{internaldate}" {length}`, wait for "+", stream the
// literal, then the terminating CRLF, then the tagged response.
func (d *Driver) Append(ctx context.Context, filer *iox.Filer, mailbox string, src io.Reader, flags []string, internalDate string) error {
	if err := d.checkInterrupt(ctx); err != nil {
		return err
	}

	staged := filer.BufferFile(0)
	defer staged.Close()

	n, err := rewriteBareLF(src, staged)
	if err != nil {
		return fmt.Errorf("syncdriver: append: staging %s: %w", mailbox, err)
	}
	if _, err := staged.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("syncdriver: append: seek staged body: %w", err)
	}

	flagList := ""
	if len(flags) > 0 {
		flagList = " (" + strings.Join(flags, " ") + ")"
	}
	cmd := fmt.Sprintf("APPEND %s%s \"%s\" {%d}", imapQuoteMailbox(mailbox), flagList, internalDate, n)

	conn := d.Engine.Conn()
	onCont := func() error {
		if err := conn.WriteLiteral(n, staged); err != nil {
			return err
		}
		if err := conn.WriteString("\r\n"); err != nil {
			return err
		}
		return conn.Flush()
	}

	d.sessionEvents.reset()
	_, result, err := d.Engine.Do(cmd, onCont)
	if err != nil {
		return fmt.Errorf("syncdriver: append: %w", err)
	}
	if result.HasCode("TRYCREATE") {
		return ErrTryCreate
	}
	if result.Status != imapcmd.ResultOK {
		return fmt.Errorf("syncdriver: append %s: %s %s", mailbox, result.Status, result.Text)
	}
	return nil
}

// rewriteBareLF copies src to dst, expanding every "\n" not already
// preceded by "\r" into "\r\n", and returns the number of bytes
// written to dst.
func rewriteBareLF(src io.Reader, dst io.Writer) (int64, error) {
	br := bufio.NewReaderSize(src, 32*1024)
	var n int64
	lastWasCR := false
	for {
		b, err := br.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		if b == '\n' && !lastWasCR {
			if _, err := dst.Write(crlf); err != nil {
				return n, err
			}
			n += 2
		} else {
			if _, err := dst.Write([]byte{b}); err != nil {
				return n, err
			}
			n++
		}
		lastWasCR = b == '\r'
	}
	return n, nil
}

var crlf = []byte{'\r', '\n'}

// imapQuoteMailbox quotes a mailbox name as an IMAP quoted string,
// backslash-escaping '\\' and '"'.
func imapQuoteMailbox(name string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range name {
		if r == '\\' || r == '"' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
