// Package tunnel supervises the external tunnel child process that
// publishes a local SOCKS5 listener forwarded to a remote host (spec.md
// §4.2).
//
// The child is opaque: this package only starts it, waits for it, and kills
// it on request. It mirrors the prototype's run_ssh (a goroutine racing
// child.Wait against a shutdown message) and ralphschuler-tut's child.stop
// (SIGTERM, then a grace period before SIGKILL).
package tunnel

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// killGrace bounds how long Run waits for the child to exit gracefully after
// SIGTERM before escalating to SIGKILL.
const killGrace = 5 * time.Second

// ErrSpawn wraps a failure to start the child process at all (spec.md's
// TunnelSpawn error kind). ErrExited wraps a failure of an already-running
// child, surfaced when it exits on its own before shutdown is requested
// (spec.md's TunnelExit error kind). Callers distinguish the two with
// errors.Is.
var (
	ErrSpawn  = errors.New("tunnel: spawn failed")
	ErrExited = errors.New("tunnel: exited")
)

// Supervisor spawns and supervises the tunnel child process.
type Supervisor struct {
	// Command is the external binary to run, "ssh" in production. Tests
	// substitute a stand-in binary.
	Command string
	// SocksAddr is the local address the child is asked to expose a
	// dynamic SOCKS5 listener on (the "-D" argument).
	SocksAddr string
	// Remote is the tunnel target passed as the child's last positional
	// argument.
	Remote string
}

// Run starts the child and blocks until either the child exits or shutdown
// is closed.
//
// If shutdown fires first, the child is sent SIGTERM, given killGrace to
// exit, then SIGKILLed; Run returns nil in this case regardless of the
// child's resulting exit status, per spec.md §4.2 ("do not treat a
// non-zero exit here as an error — the child was killed").
//
// If the child exits on its own first, Run returns nil for a clean exit and
// a non-nil error otherwise (spec.md's TunnelExit error kind).
func Run(sup Supervisor, shutdown <-chan struct{}) error {
	args := []string{"-D", sup.SocksAddr, "-N", sup.Remote}
	cmd := exec.Command(sup.Command, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: spawn tunnel %s: %w", ErrSpawn, sup.Command, err)
	}

	exited := make(chan error, 1)
	go func() {
		exited <- cmd.Wait()
	}()

	select {
	case err := <-exited:
		if err != nil {
			return fmt.Errorf("%w: tunnel exited: %w", ErrExited, err)
		}
		return nil
	case <-shutdown:
		return killAndWait(cmd, exited)
	}
}

func killAndWait(cmd *exec.Cmd, exited <-chan error) error {
	if cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-exited:
		return nil
	case <-time.After(killGrace):
		_ = cmd.Process.Kill()
		<-exited
		return nil
	}
}
