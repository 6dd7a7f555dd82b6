package cli

import (
	"bytes"
	"strings"
	"testing"
)

func newTestREPL(t *testing.T) (*REPL, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	output := &bytes.Buffer{}
	errOutput := &bytes.Buffer{}

	repl, err := NewREPLWithInput(dir, strings.NewReader(""), output, errOutput)
	if err != nil {
		t.Fatalf("NewREPLWithInput failed: %v", err)
	}
	return repl, output, errOutput
}

func TestREPL_PutAndGet(t *testing.T) {
	repl, output, errOutput := newTestREPL(t)
	defer repl.Close()

	if err := repl.dispatch("put default greeting hello"); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	output.Reset()
	if err := repl.dispatch("get default greeting"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(output.String(), "hello") {
		t.Errorf("expected output to contain the stored value, got: %q", output.String())
	}
	if errOutput.Len() != 0 {
		t.Errorf("expected no error output, got: %q", errOutput.String())
	}
}

func TestREPL_GetMissingKeyReportsNotFound(t *testing.T) {
	repl, output, _ := newTestREPL(t)
	defer repl.Close()

	if err := repl.dispatch("get default nope"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !strings.Contains(output.String(), "not found") {
		t.Errorf("expected a not-found message, got: %q", output.String())
	}
}

func TestREPL_DeleteRemovesKey(t *testing.T) {
	repl, output, _ := newTestREPL(t)
	defer repl.Close()

	if err := repl.dispatch("put default a 1"); err != nil {
		t.Fatal(err)
	}
	if err := repl.dispatch("del default a"); err != nil {
		t.Fatalf("del failed: %v", err)
	}

	output.Reset()
	if err := repl.dispatch("get default a"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(output.String(), "not found") {
		t.Errorf("expected deleted key to read back missing, got: %q", output.String())
	}
}

func TestREPL_ScanListsEntries(t *testing.T) {
	repl, output, _ := newTestREPL(t)
	defer repl.Close()

	if err := repl.dispatch("put default a 1"); err != nil {
		t.Fatal(err)
	}
	if err := repl.dispatch("put default b 2"); err != nil {
		t.Fatal(err)
	}

	output.Reset()
	if err := repl.dispatch("scan default"); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	result := output.String()
	if !strings.Contains(result, "a\t1") || !strings.Contains(result, "b\t2") {
		t.Errorf("expected both entries in scan output, got: %q", result)
	}
	if !strings.Contains(result, "2 row(s)") {
		t.Errorf("expected row count footer, got: %q", result)
	}
}

func TestREPL_AppendAndEvents(t *testing.T) {
	repl, output, _ := newTestREPL(t)
	defer repl.Close()

	if err := repl.dispatch("append default orders order-1"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := repl.dispatch("append default orders order-2"); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	output.Reset()
	if err := repl.dispatch("events default orders"); err != nil {
		t.Fatalf("events failed: %v", err)
	}
	result := output.String()
	if !strings.Contains(result, "order-1") || !strings.Contains(result, "order-2") {
		t.Errorf("expected both events listed, got: %q", result)
	}
}

func TestREPL_BranchLifecycle(t *testing.T) {
	repl, output, _ := newTestREPL(t)
	defer repl.Close()

	if err := repl.dispatch("branch create feature-x"); err != nil {
		t.Fatalf("branch create failed: %v", err)
	}

	output.Reset()
	if err := repl.dispatch("branch list"); err != nil {
		t.Fatalf("branch list failed: %v", err)
	}
	if !strings.Contains(output.String(), "feature-x") {
		t.Errorf("expected created branch in listing, got: %q", output.String())
	}

	if err := repl.dispatch("put feature-x k 1"); err != nil {
		t.Fatalf("put on branch failed: %v", err)
	}

	if err := repl.dispatch("branch drop feature-x"); err != nil {
		t.Fatalf("branch drop failed: %v", err)
	}

	if err := repl.dispatch("branch resolve feature-x"); err == nil {
		t.Error("expected resolving a dropped branch to fail")
	}
}

func TestREPL_CheckpointAndCompact(t *testing.T) {
	repl, output, _ := newTestREPL(t)
	defer repl.Close()

	if err := repl.dispatch("put default a 1"); err != nil {
		t.Fatal(err)
	}

	output.Reset()
	if err := repl.dispatch("checkpoint"); err != nil {
		t.Fatalf("checkpoint failed: %v", err)
	}
	if !strings.Contains(output.String(), "snapshot") {
		t.Errorf("expected checkpoint confirmation, got: %q", output.String())
	}

	if err := repl.dispatch("compact"); err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	if err := repl.dispatch("compact full"); err != nil {
		t.Fatalf("compact full failed: %v", err)
	}
}

func TestREPL_UnknownCommandErrors(t *testing.T) {
	repl, _, _ := newTestREPL(t)
	defer repl.Close()

	if err := repl.dispatch("frobnicate"); err == nil {
		t.Error("expected an error for an unknown command")
	}
}
