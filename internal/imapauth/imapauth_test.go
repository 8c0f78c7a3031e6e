package imapauth

import (
	"encoding/hex"
	"testing"
)

// RFC 2195 section 3 worked example.
func TestCRAMMD5RFC2195Vectors(t *testing.T) {
	challenge := []byte("<1896.697170952@postoffice.reston.mci.net>")
	got := hex.EncodeToString(CRAMMD5Digest("tanstaaftanstaaf", challenge))
	want := "b913a602c7eda7a495b4e6e7334d3890"
	if got != want {
		t.Errorf("digest = %q, want %q", got, want)
	}
}

func TestCRAMMD5Step(t *testing.T) {
	m := &CRAMMD5{Credentials: Credentials{User: "tim", Pass: "tanstaaftanstaaf"}}
	resp, done, err := m.Step([]byte("<1896.697170952@postoffice.reston.mci.net>"))
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Errorf("expected CRAM-MD5 to complete in one step")
	}
	want := "tim b913a602c7eda7a495b4e6e7334d3890"
	if string(resp) != want {
		t.Errorf("response = %q, want %q", resp, want)
	}
}

func TestPlainStep(t *testing.T) {
	m := &Plain{Credentials: Credentials{User: "u", Pass: "p"}}
	resp, done, err := m.Step(nil)
	if err != nil || !done {
		t.Fatalf("done=%v err=%v", done, err)
	}
	if string(resp) != "\x00u\x00p" {
		t.Errorf("response = %q", resp)
	}
}

func TestLoginTwoStep(t *testing.T) {
	m := &Login{Credentials: Credentials{User: "u", Pass: "p"}}
	resp1, done1, _ := m.Step([]byte("Username:"))
	if done1 || string(resp1) != "u" {
		t.Errorf("step1 = %q, done=%v", resp1, done1)
	}
	resp2, done2, _ := m.Step([]byte("Password:"))
	if !done2 || string(resp2) != "p" {
		t.Errorf("step2 = %q, done=%v", resp2, done2)
	}
}

func TestChainFallsThroughToWorkingMechanism(t *testing.T) {
	creds := Credentials{User: "u", Pass: "p"}
	var tried []string
	exchange := func(m Mechanism) error {
		tried = append(tried, m.Name())
		if m.Name() != "LOGIN" {
			return errTest
		}
		return nil
	}
	if err := Chain(creds, nil, exchange); err != nil {
		t.Fatal(err)
	}
	want := []string{"CRAM-MD5", "PLAIN", "LOGIN"}
	if len(tried) != len(want) {
		t.Fatalf("tried = %v", tried)
	}
	for i := range want {
		if tried[i] != want[i] {
			t.Errorf("tried[%d] = %q, want %q", i, tried[i], want[i])
		}
	}
}

func TestChainAllFail(t *testing.T) {
	creds := Credentials{User: "u", Pass: "p"}
	err := Chain(creds, nil, func(Mechanism) error { return errTest })
	if err == nil {
		t.Fatal("expected error")
	}
}

var errTest = &testError{"mechanism rejected"}

type testError struct{ s string }

func (e *testError) Error() string { return e.s }
