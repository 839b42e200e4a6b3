package external

import (
	"context"
	"errors"
	"os/exec"
	"testing"
)

func TestLookupMissingTool(t *testing.T) {
	_, err := Lookup("definitely-not-a-real-binary-xyz", "")
	if !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
	if Available("definitely-not-a-real-binary-xyz", "") {
		t.Error("Available() should be false for a missing binary")
	}
}

func TestPipe(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat not available")
	}
	tool, err := Lookup("cat", "")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	out, err := tool.Pipe(context.Background(), []byte("hello"))
	if err != nil {
		t.Fatalf("Pipe: %v", err)
	}
	if string(out) != "hello" {
		t.Errorf("Pipe output = %q", out)
	}
}

func TestRunFailureIncludesToolName(t *testing.T) {
	if _, err := exec.LookPath("false"); err != nil {
		t.Skip("false not available")
	}
	tool, err := Lookup("false", "")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	err = tool.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if got := err.Error(); len(got) < 5 || got[:5] != "false" {
		t.Errorf("error should start with tool name, got %q", got)
	}
}
