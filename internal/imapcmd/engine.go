// Package imapcmd implements the client-side IMAP command engine:
// tag allocation, immediate vs. queued command submission, and the
// untagged-response dispatch loop a client needs to drive a session.
//
// Responses are read line by line and FETCH attribute lists are taken
// apart by a hand-written, literal-aware attribute scanner, the
// client-side counterpart of imap/imapparser/scanner.go: parsing what
// a server emits rather than what a client sends.
package imapcmd

import (
	"errors"
	"fmt"
	"strings"

	"spilled.ink/mailengine/internal/imapconn"
)

// ErrClosed reports use of a closed engine. Engine has no Close
// method, and neither Step nor Do returns ErrClosed.
var ErrClosed = errors.New("imapcmd: engine closed")

// ErrProtocol reports a response line that doesn't follow the IMAP
// grammar the engine understands.
type ErrProtocol struct {
	Line string
}

func (e *ErrProtocol) Error() string {
	return fmt.Sprintf("imapcmd: protocol error: %q", e.Line)
}

// Result is the outcome of a completed tagged command.
type Result struct {
	Status ResultStatus
	Text   string   // the human-readable phrase following OK/NO/BAD
	Codes  []string // bracketed response codes, e.g. "TRYCREATE", "UIDVALIDITY 12345"
}

type ResultStatus int

const (
	ResultOK ResultStatus = iota
	ResultNO
	ResultBAD
)

func (r ResultStatus) String() string {
	switch r {
	case ResultOK:
		return "OK"
	case ResultNO:
		return "NO"
	case ResultBAD:
		return "BAD"
	default:
		return "?"
	}
}

// HasCode reports whether the result carries a response code whose
// name (the first word) equals name, case-insensitively.
func (r Result) HasCode(name string) bool {
	for _, c := range r.Codes {
		field, _, _ := strings.Cut(c, " ")
		if strings.EqualFold(field, name) {
			return true
		}
	}
	return false
}

// Handler receives untagged responses and continuation requests as
// the engine steps through the response stream. Implementations
// should not block; long work (e.g. reconciling mailbox state)
// should be deferred by setting a reopen flag and acting on it once
// the response stream is quiescent.
type Handler interface {
	OnExists(n uint32)
	OnRecent(n uint32)
	OnExpunge(msn uint32)
	OnVanished(earlier bool, uids []SeqRange)
	OnFetch(item FetchResponse)
	OnFlags(flags [][]byte)
	OnList(item ListResponse)
	OnStatus(mailbox string, items map[string]int64)
	OnCapability(caps []string)
	OnUntaggedOK(codes []string, text string)
	OnUntaggedBad(text string)

	// OpenLiteralSink is called when the tokenizer encounters a FETCH
	// literal ({n} following BODY[...]/RFC822.HEADER/RFC822.TEXT) and
	// needs somewhere to drain it. The returned Writer receives
	// exactly n bytes.
	OpenLiteralSink(msn uint32, section string, size int64) (LiteralSink, error)
}

// LiteralSink receives literal bytes and is closed once the literal
// has been fully drained.
type LiteralSink interface {
	Write(p []byte) (int, error)
	Close() error
}

// Engine owns the command/response cycle over a single Conn.
type Engine struct {
	conn    *imapconn.Conn
	handler Handler

	tagSeq  int
	pending []queuedCommand // commands submitted but not yet sent
	contFn  func(remaining []byte) error
}

type queuedCommand struct {
	tag  string
	line string
}

// New returns an Engine driving conn, dispatching untagged responses
// to handler.
func New(conn *imapconn.Conn, handler Handler) *Engine {
	return &Engine{conn: conn, handler: handler}
}

// Conn returns the underlying connection, for callers (e.g. the sync
// driver's APPEND) that need to stream a literal during a "+"
// continuation callback.
func (e *Engine) Conn() *imapconn.Conn { return e.conn }

// NextTag allocates the next monotone command tag ("a0001", "a0002",
// ...).
func (e *Engine) NextTag() string {
	e.tagSeq++
	return fmt.Sprintf("a%04d", e.tagSeq)
}

// Queue enqueues a command line (without trailing CRLF, without tag)
// to be sent ahead of the next immediate command: it is not written
// to the wire immediately, but the next immediate command drains the
// whole queue (in submission order) before itself being sent.
func (e *Engine) Queue(line string) (tag string) {
	tag = e.NextTag()
	e.pending = append(e.pending, queuedCommand{tag: tag, line: line})
	return tag
}

// Do sends line as an immediate command (after flushing any queued
// commands first) and blocks until its tagged response arrives,
// dispatching untagged responses to the Handler along the way.
//
// onContinuation, if non-nil, is invoked whenever the server sends a
// "+" continuation request while this command (or one of the queued
// commands flushed ahead of it) is outstanding; it should write
// whatever the continuation expects (e.g. a literal body) and return.
func (e *Engine) Do(line string, onContinuation func() error) (tag string, result Result, err error) {
	queued := e.pending
	e.pending = nil

	for _, q := range queued {
		if err := e.send(q.tag, q.line); err != nil {
			return "", Result{}, err
		}
	}
	tag = e.NextTag()
	if err := e.send(tag, line); err != nil {
		return "", Result{}, err
	}

	// Drain responses for every queued command first, in submission
	// order, then for our own tag.
	for _, q := range queued {
		if _, err := e.awaitTag(q.tag, onContinuation); err != nil {
			return "", Result{}, err
		}
	}
	result, err = e.awaitTag(tag, onContinuation)
	return tag, result, err
}

func (e *Engine) send(tag, line string) error {
	if err := e.conn.WriteString(tag); err != nil {
		return err
	}
	if err := e.conn.WriteString(" "); err != nil {
		return err
	}
	if err := e.conn.WriteString(line); err != nil {
		return err
	}
	if err := e.conn.WriteString("\r\n"); err != nil {
		return err
	}
	return e.conn.Flush()
}

// awaitTag steps the response stream until tag's tagged response
// arrives.
func (e *Engine) awaitTag(tag string, onContinuation func() error) (Result, error) {
	for {
		kind, result, err := e.Step(onContinuation)
		if err != nil {
			return Result{}, err
		}
		if kind == stepTagged && result.tag == tag {
			return result.Result, nil
		}
	}
}

type stepKind int

const (
	stepUntagged stepKind = iota
	stepContinuation
	stepTagged
)

type taggedResult struct {
	tag string
	Result
}

// Step reads and classifies exactly one response line, dispatching
// untagged responses to the Handler and invoking onContinuation for
// "+" continuation requests. It is exported so callers can drive the
// engine directly while idle (e.g. during IDLE).
func (e *Engine) Step(onContinuation func() error) (stepKind, taggedResult, error) {
	line, err := e.conn.ReadLine()
	if err != nil {
		return 0, taggedResult{}, err
	}
	switch {
	case len(line) > 0 && line[0] == '*':
		e.dispatchUntagged(line[1:])
		return stepUntagged, taggedResult{}, nil
	case len(line) > 0 && line[0] == '+':
		if onContinuation != nil {
			if err := onContinuation(); err != nil {
				return 0, taggedResult{}, err
			}
		}
		return stepContinuation, taggedResult{}, nil
	default:
		tag, result, err := parseTaggedResponse(line)
		if err != nil {
			return 0, taggedResult{}, err
		}
		return stepTagged, taggedResult{tag: tag, Result: result}, nil
	}
}

func parseTaggedResponse(line []byte) (tag string, result Result, err error) {
	s := string(line)
	tag, rest, ok := strings.Cut(s, " ")
	if !ok {
		return "", Result{}, &ErrProtocol{Line: s}
	}
	statusWord, rest, _ := strings.Cut(rest, " ")
	var status ResultStatus
	switch strings.ToUpper(statusWord) {
	case "OK":
		status = ResultOK
	case "NO":
		status = ResultNO
	case "BAD":
		status = ResultBAD
	default:
		return "", Result{}, &ErrProtocol{Line: s}
	}
	codes, text := extractCodes(rest)
	return tag, Result{Status: status, Text: text, Codes: codes}, nil
}

// extractCodes splits a leading "[CODE ...] text" form, returning the
// bracketed codes (there may be several bracketed groups in theory;
// IMAP practice is exactly zero or one) and the trailing text.
func extractCodes(s string) (codes []string, text string) {
	s = strings.TrimSpace(s)
	for strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			break
		}
		codes = append(codes, s[1:end])
		s = strings.TrimSpace(s[end+1:])
	}
	return codes, s
}

