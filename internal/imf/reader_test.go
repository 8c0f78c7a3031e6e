package imf

import (
	"bufio"
	"strings"
	"testing"
)

func TestReadMIMEHeaderBasic(t *testing.T) {
	raw := "Subject: hello\r\nFrom: a@example.com\r\n\r\nbody\r\n"
	r := NewReader(bufio.NewReader(strings.NewReader(raw)))
	h, err := r.ReadMIMEHeader()
	if err != nil {
		t.Fatal(err)
	}
	if string(h.Get("Subject")) != "hello" {
		t.Errorf("Subject = %q", h.Get("Subject"))
	}
	if string(h.Get("From")) != "a@example.com" {
		t.Errorf("From = %q", h.Get("From"))
	}
}

func TestReadMIMEHeaderFoldedContinuation(t *testing.T) {
	raw := "Subject: hello\r\n  world\r\n\r\n"
	r := NewReader(bufio.NewReader(strings.NewReader(raw)))
	h, err := r.ReadMIMEHeader()
	if err != nil {
		t.Fatal(err)
	}
	if string(h.Get("Subject")) != "hello world" {
		t.Errorf("Subject = %q", h.Get("Subject"))
	}
}

func TestReadMIMEHeaderDecodesEncodedWord(t *testing.T) {
	raw := "Subject: =?utf-8?Q?Caf=C3=A9?=\r\n\r\n"
	r := NewReader(bufio.NewReader(strings.NewReader(raw)))
	h, err := r.ReadMIMEHeader()
	if err != nil {
		t.Fatal(err)
	}
	if string(h.Get("Subject")) != "Café" {
		t.Errorf("Subject = %q", h.Get("Subject"))
	}
}

func TestBuildEnvelope(t *testing.T) {
	raw := "Date: Mon, 15 Jan 2024 09:07:42 +0000\r\n" +
		"From: a@example.com\r\n" +
		"Subject: hi\r\n" +
		"Message-Id: <abc@example.com>\r\n\r\n"
	r := NewReader(bufio.NewReader(strings.NewReader(raw)))
	h, err := r.ReadMIMEHeader()
	if err != nil {
		t.Fatal(err)
	}
	env := BuildEnvelope(&h)
	if env.From != "a@example.com" || env.Subject != "hi" || env.MessageID != "<abc@example.com>" {
		t.Errorf("env = %+v", env)
	}
	if env.Date == 0 {
		t.Errorf("expected parsed Date, got 0")
	}
}
