package redirtun

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/die-net/redirtun/internal/config"
	"github.com/die-net/redirtun/internal/firewall"
	"github.com/die-net/redirtun/internal/socksclient"
)

// recordingDriver implements firewall.Driver. PlanSetup/PlanRestore are
// fixed command sequences supplied by the test; Listen binds a real TCP
// socket so the listener pool has something to run.
type recordingDriver struct {
	setup, restore firewall.Commands
}

var _ firewall.Driver = (*recordingDriver)(nil)

func (d *recordingDriver) PlanSetup(config.FirewallConfig) (firewall.Commands, error) {
	return d.setup, nil
}

func (d *recordingDriver) PlanRestore(config.FirewallConfig) (firewall.Commands, error) {
	return d.restore, nil
}

func (d *recordingDriver) Listen(ctx context.Context, addr config.ListenerAddr) (net.Listener, error) {
	lc := net.ListenConfig{}
	return lc.Listen(ctx, "tcp", net.JoinHostPort(addr.IP, "0"))
}

func (d *recordingDriver) OriginalDst(c net.Conn) (net.IP, int, error) {
	ta := c.LocalAddr().(*net.TCPAddr)
	return ta.IP, ta.Port, nil
}

func TestRunSetupFailureStillRunsRestore(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "restored")

	driver := &recordingDriver{
		setup:   firewall.Commands{{Name: "false"}},
		restore: firewall.Commands{{Name: "touch", Args: []string{marker}}},
	}
	cfg := &config.Config{SocksAddr: "127.0.0.1:1"}
	cfg.Listen = nil

	err := Run(context.Background(), Options{
		Config: cfg,
		Driver: driver,
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	if err == nil {
		t.Fatal("expected firewall setup error")
	}
	if !errors.Is(err, ErrFirewallExec) {
		t.Fatalf("expected ErrFirewallExec, got %v", err)
	}
	if _, statErr := os.Stat(marker); statErr != nil {
		t.Fatalf("restore did not run: %v", statErr)
	}
}

func TestRunTunnelExitIsFatalAndRestoreRuns(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "restored")

	driver := &recordingDriver{
		setup:   firewall.Commands{{Name: "true"}},
		restore: firewall.Commands{{Name: "touch", Args: []string{marker}}},
	}
	cfg := &config.Config{
		SocksAddr: "127.0.0.1:1",
		Remote:    "127.0.0.1",
		Listen:    []config.ListenEntry{{Proto: "tcp", IP: "127.0.0.1", Port: 0}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := Run(ctx, Options{
		Config:    cfg,
		Driver:    driver,
		SocksAuth: socksclient.Auth{},
		TunnelCmd: "false", // exits 1 immediately, simulating an unexpected tunnel death
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	if err == nil {
		t.Fatal("expected tunnel exit error")
	}
	if !errors.Is(err, ErrTunnelExit) {
		t.Fatalf("expected ErrTunnelExit, got %v", err)
	}
	if _, statErr := os.Stat(marker); statErr != nil {
		t.Fatalf("restore did not run: %v", statErr)
	}
}

func TestRunTunnelSpawnFailureIsDistinctFromExit(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "restored")

	driver := &recordingDriver{
		setup:   firewall.Commands{{Name: "true"}},
		restore: firewall.Commands{{Name: "touch", Args: []string{marker}}},
	}
	cfg := &config.Config{
		SocksAddr: "127.0.0.1:1",
		Remote:    "127.0.0.1",
		Listen:    []config.ListenEntry{{Proto: "tcp", IP: "127.0.0.1", Port: 0}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := Run(ctx, Options{
		Config:    cfg,
		Driver:    driver,
		SocksAuth: socksclient.Auth{},
		TunnelCmd: "/nonexistent/does-not-exist", // fails to start at all
		Logger:    slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})),
	})
	if err == nil {
		t.Fatal("expected tunnel spawn error")
	}
	if !errors.Is(err, ErrTunnelSpawn) {
		t.Fatalf("expected ErrTunnelSpawn, got %v", err)
	}
	if errors.Is(err, ErrTunnelExit) {
		t.Fatalf("spawn failure should not also match ErrTunnelExit: %v", err)
	}
	if _, statErr := os.Stat(marker); statErr != nil {
		t.Fatalf("restore did not run: %v", statErr)
	}
}
