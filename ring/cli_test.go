package ring

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func newTestCLI(t *testing.T) (*CLI, *Node, *bytes.Buffer) {
	t.Helper()
	node := newTestNode(t, 42)
	node.CreateRing()
	out := &bytes.Buffer{}
	return NewCLI(node, 2, nil, out, nil), node, out
}

func TestCLIStoreReadWrite(t *testing.T) {
	cli, _, out := newTestCLI(t)

	if err := cli.RunLine("store notes milk and eggs"); err != nil {
		t.Fatalf("store: %v", err)
	}
	if !strings.Contains(out.String(), "stored 2/2 replicas") {
		t.Errorf("store output = %q", out.String())
	}

	out.Reset()
	if err := cli.RunLine("read notes"); err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(out.String(), "milk and eggs") {
		t.Errorf("read output = %q", out.String())
	}

	out.Reset()
	if err := cli.RunLine("write notes bread only"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(out.String(), "committed") {
		t.Errorf("write output = %q", out.String())
	}

	out.Reset()
	if err := cli.RunLine("read notes"); err != nil {
		t.Fatalf("read after write: %v", err)
	}
	if !strings.Contains(out.String(), "bread only") {
		t.Errorf("read after write = %q", out.String())
	}
}

func TestCLILocateAndState(t *testing.T) {
	cli, node, out := newTestCLI(t)

	if err := cli.RunLine("store ledger v1"); err != nil {
		t.Fatalf("store: %v", err)
	}

	out.Reset()
	if err := cli.RunLine("locate ledger"); err != nil {
		t.Fatalf("locate: %v", err)
	}
	if !strings.Contains(out.String(), node.Me().Address) {
		t.Errorf("locate output misses the owner address: %q", out.String())
	}

	out.Reset()
	if err := cli.RunLine("state"); err != nil {
		t.Fatalf("state: %v", err)
	}
	dump := out.String()
	if !strings.Contains(dump, "self") || !strings.Contains(dump, node.Me().Address) {
		t.Errorf("state dump misses the node itself: %q", dump)
	}
	if !strings.Contains(dump, "ledger") {
		t.Errorf("state dump misses the stored file: %q", dump)
	}
}

func TestCLIErrorsAndExit(t *testing.T) {
	cli, _, out := newTestCLI(t)

	if err := cli.RunLine("read absent"); err == nil {
		t.Errorf("read of absent file reported no error")
	}
	if !strings.Contains(out.String(), "NOTFOUND") {
		t.Errorf("read of absent file printed %q", out.String())
	}

	if err := cli.RunLine("store lonely"); err == nil {
		t.Errorf("store without content accepted")
	}
	if err := cli.RunLine("frobnicate"); err == nil {
		t.Errorf("unknown command accepted")
	}
	if err := cli.RunLine(""); err != nil {
		t.Errorf("blank line: %v", err)
	}

	quitCalled := false
	cli.quit = func() { quitCalled = true }
	if err := cli.RunLine("exit"); err != io.EOF {
		t.Errorf("exit returned %v, want io.EOF", err)
	}
	if !quitCalled {
		t.Errorf("exit did not invoke quit")
	}
}

func TestCLIRunStream(t *testing.T) {
	node := newTestNode(t, 42)
	node.CreateRing()
	out := &bytes.Buffer{}
	in := strings.NewReader("store notes hello\nread notes\nexit\nread notes\n")

	cli := NewCLI(node, 2, in, out, nil)
	if err := cli.Run(); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	// One read before exit prints the content; the read after exit never
	// runs.
	if strings.Count(got, "hello") != 1 {
		t.Errorf("stream output = %q, want exactly one read result", got)
	}
}
