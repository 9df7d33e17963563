package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func skipIfNoShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommand_String(t *testing.T) {
	tests := []struct {
		cmd  Command
		want string
	}{
		{Command{Name: "git"}, "git"},
		{Command{Name: "git", Args: []string{"clone", "url", "dir"}}, "git clone url dir"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.cmd.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecRunner_CapturesOutput(t *testing.T) {
	skipIfNoShell(t)

	res, err := New().Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo out; echo err >&2"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if !strings.Contains(res.Output, "out") || !strings.Contains(res.Output, "err") {
		t.Errorf("Output = %q, want both streams", res.Output)
	}
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	skipIfNoShell(t)

	res, err := New().Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo boom; exit 3"},
	})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if FirstLine(res.Output) != "boom" {
		t.Errorf("Output = %q", res.Output)
	}
	if !strings.Contains(err.Error(), "sh -c") {
		t.Errorf("error = %q, want command line", err.Error())
	}
}

func TestExecRunner_Dir(t *testing.T) {
	skipIfNoShell(t)

	dir := t.TempDir()
	res, err := New().Run(context.Background(), Command{Name: "sh", Args: []string{"-c", "pwd"}, Dir: dir})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// macOS temp dirs resolve through /private
	if !strings.HasSuffix(FirstLine(res.Output), dir) {
		t.Errorf("pwd = %q, want %q", FirstLine(res.Output), dir)
	}
}

func TestExecRunner_Env(t *testing.T) {
	skipIfNoShell(t)

	sh, _ := exec.LookPath("sh")
	res, err := New().Run(context.Background(), Command{
		Name: sh,
		Args: []string{"-c", "echo $ZEREPY_TEST"},
		Env:  []string{"ZEREPY_TEST=hello"},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if FirstLine(res.Output) != "hello" {
		t.Errorf("Output = %q, want hello", res.Output)
	}
}

func TestExecRunner_Attached(t *testing.T) {
	skipIfNoShell(t)

	var stdout, stderr bytes.Buffer
	res, err := New().Run(context.Background(), Command{
		Name:   "sh",
		Args:   []string{"-c", "echo visible; echo problem >&2"},
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Output != "" {
		t.Errorf("attached command should not capture, got %q", res.Output)
	}
	if stdout.String() != "visible\n" || stderr.String() != "problem\n" {
		t.Errorf("stdout=%q stderr=%q", stdout.String(), stderr.String())
	}
}

func TestExecRunner_NotFound(t *testing.T) {
	res, err := New().Run(context.Background(), Command{Name: "zerepyctl-definitely-missing"})
	if err == nil {
		t.Fatal("expected error for missing executable")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound(%v) = false", err)
	}
	if res.ExitCode != -1 {
		t.Errorf("ExitCode = %d, want -1", res.ExitCode)
	}
}

func TestExecRunner_ContextCancelInterrupts(t *testing.T) {
	skipIfNoShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	r := &ExecRunner{WaitDelay: time.Second}
	_, err := r.Run(ctx, Command{Name: "sh", Args: []string{"-c", "sleep 30"}})
	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Run took %v after cancellation", elapsed)
	}
}

func TestExitCodeOf(t *testing.T) {
	if ExitCodeOf(nil) != 0 {
		t.Error("ExitCodeOf(nil) should be 0")
	}
	if ExitCodeOf(errors.New("plain")) != -1 {
		t.Error("ExitCodeOf(non-exit error) should be -1")
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"Python 3.12.1\n", "Python 3.12.1"},
		{"\n\n  git version 2.43.0  \nextra", "git version 2.43.0"},
	}

	for _, tt := range tests {
		if got := FirstLine(tt.in); got != tt.want {
			t.Errorf("FirstLine(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
