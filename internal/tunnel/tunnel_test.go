package tunnel

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRunReportsNonZeroExitAsError(t *testing.T) {
	sup := Supervisor{Command: "false", SocksAddr: "ignored", Remote: "ignored"}
	err := Run(sup, make(chan struct{}))
	if err == nil {
		t.Fatal("expected tunnel exit error")
	}
	if !errors.Is(err, ErrExited) {
		t.Fatalf("expected ErrExited, got %v", err)
	}
}

func TestRunReportsSpawnFailureDistinctlyFromExit(t *testing.T) {
	sup := Supervisor{Command: "/nonexistent/does-not-exist", SocksAddr: "ignored", Remote: "ignored"}
	err := Run(sup, make(chan struct{}))
	if err == nil {
		t.Fatal("expected spawn error")
	}
	if !errors.Is(err, ErrSpawn) {
		t.Fatalf("expected ErrSpawn, got %v", err)
	}
	if errors.Is(err, ErrExited) {
		t.Fatalf("spawn failure should not also match ErrExited: %v", err)
	}
}

func TestRunKillsChildOnShutdown(t *testing.T) {
	sup := Supervisor{Command: sleeperScript(t), SocksAddr: "ignored", Remote: "ignored"}
	shutdown := make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- Run(sup, shutdown) }()

	time.Sleep(100 * time.Millisecond)
	close(shutdown)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("shutdown-triggered kill must report nil error, got %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
}

// sleeperScript writes a throwaway shell script that ignores its arguments
// (so it tolerates Run's fixed "-D addr -N remote" argv shape) and sleeps
// long enough to be killed rather than exit on its own.
func sleeperScript(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sleeper.sh")
	script := "#!/bin/sh\nsleep 30\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}
