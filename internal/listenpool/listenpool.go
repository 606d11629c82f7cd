// Package listenpool implements the Listener Pool (spec.md §4.3): one accept
// loop per configured TCP listener, each handing accepted connections off to
// a Connection Forwarder without waiting for them, and all loops aggregated
// so that any one listener's fatal failure brings the whole pool down.
package listenpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/txthinking/runnergroup"

	"github.com/die-net/redirtun/internal/config"
	"github.com/die-net/redirtun/internal/firewall"
	"github.com/die-net/redirtun/internal/forwarder"
)

// Pool owns one net.Listener per configured TCP address and runs their
// accept loops until one of them fails fatally or Stop is called.
type Pool struct {
	driver    firewall.Driver
	forwarder *forwarder.Forwarder
	logger    *slog.Logger

	group *runnergroup.RunnerGroup
	addrs []net.Addr
}

// New builds a Pool over the given listener addresses. Listeners are bound
// immediately (via driver.Listen) so that bind failures surface before the
// pool is run, rather than racing with the first Run call.
//
// Only TCP addresses produce a runner; UDP entries are accepted in config
// for forward compatibility but are not served (spec.md's scope is TCP
// only).
func New(ctx context.Context, driver firewall.Driver, addrs []config.ListenerAddr, fwd *forwarder.Forwarder, logger *slog.Logger) (*Pool, error) {
	p := &Pool{
		driver:    driver,
		forwarder: fwd,
		logger:    logger,
		group:     runnergroup.New(),
	}

	var opened []net.Listener
	for _, addr := range addrs {
		if addr.Proto != config.TCP {
			continue
		}
		ln, err := driver.Listen(ctx, addr)
		if err != nil {
			for _, o := range opened {
				_ = o.Close()
			}
			return nil, fmt.Errorf("listen %s: %w", addr, err)
		}
		opened = append(opened, ln)
		p.addrs = append(p.addrs, ln.Addr())
		p.addListener(addr, ln)
	}

	if len(opened) == 0 {
		return nil, errors.New("listenpool: no tcp listeners configured")
	}

	return p, nil
}

// addListener registers a runnergroup.Runner that accepts on ln until ln is
// closed (by Stop, by Run's own collapse, or by a fatal accept error), and
// dispatches every accepted connection to a forwarder goroutine.
func (p *Pool) addListener(addr config.ListenerAddr, ln net.Listener) {
	p.group.Add(&runnergroup.Runner{
		Start: func() error {
			return p.acceptLoop(addr, ln)
		},
		Stop: func() error {
			return ln.Close()
		},
	})
}

// acceptLoop runs until Accept fails, which happens when the listener is
// deliberately closed (Stop) or dies on its own; either way the error is
// handed to the RunnerGroup, which treats any runner's exit as the signal to
// collapse the whole pool.
func (p *Pool) acceptLoop(addr config.ListenerAddr, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return fmt.Errorf("listener %s: accept: %w", addr, err)
		}
		go p.forwarder.Handle(conn)
	}
}

// Addrs returns the bound address of every TCP listener in the pool, in the
// order their config.ListenerAddr entries were given.
func (p *Pool) Addrs() []net.Addr {
	return p.addrs
}

// Run blocks until the first runner exits, for any reason, then stops every
// other runner and returns the first error observed. An accept loop only
// exits on an Accept error, so the returned error is non-nil even when the
// exit was caused by Stop.
func (p *Pool) Run() error {
	return p.group.Run()
}

// Stop closes every listener, unblocking their accept loops so Run returns.
// It does not touch connections already handed off to the forwarder: those
// drain on their own, per spec.md's "no aborts on forwarders" invariant.
func (p *Pool) Stop() {
	for _, r := range p.group.Runners {
		_ = r.Stop()
	}
}
