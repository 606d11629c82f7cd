package forwarder

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	txsocks5 "github.com/txthinking/socks5"

	"github.com/die-net/redirtun/internal/config"
	"github.com/die-net/redirtun/internal/firewall"
	"github.com/die-net/redirtun/internal/socksclient"
	"github.com/die-net/redirtun/internal/testutil"
)

// stubDriver implements firewall.Driver with a fixed OriginalDst result;
// PlanSetup, PlanRestore and Listen are never exercised by Handle.
type stubDriver struct {
	ip     net.IP
	port   int
	dstErr error
}

var _ firewall.Driver = (*stubDriver)(nil)

func (d *stubDriver) PlanSetup(config.FirewallConfig) (firewall.Commands, error) {
	return nil, nil
}

func (d *stubDriver) PlanRestore(config.FirewallConfig) (firewall.Commands, error) {
	return nil, nil
}

func (d *stubDriver) Listen(context.Context, config.ListenerAddr) (net.Listener, error) {
	return nil, nil
}

func (d *stubDriver) OriginalDst(net.Conn) (net.IP, int, error) {
	return d.ip, d.port, d.dstErr
}

func TestHandleOriginalDstFailureDropsConnectionSilently(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	driver := &stubDriver{dstErr: errPlaceholder}
	fw := New(driver, "127.0.0.1:1", socksclient.Auth{}, slog.Default())

	done := make(chan struct{})
	go func() {
		fw.Handle(local)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handle did not return after OriginalDst failure")
	}

	buf := make([]byte, 1)
	remote.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, err := remote.Read(buf); err == nil {
		t.Fatal("expected peer side to observe local connection closed")
	}
}

func TestHandleSocksConnectFailureDropsConnectionSilently(t *testing.T) {
	local, remote := net.Pipe()
	defer remote.Close()

	driver := &stubDriver{ip: net.ParseIP("203.0.113.1"), port: 80}
	// No listener at all on this address: dial should fail fast.
	fw := New(driver, "127.0.0.1:1", socksclient.Auth{}, slog.Default())

	done := make(chan struct{})
	go func() {
		fw.Handle(local)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Handle did not return after socks5 connect failure")
	}
}

func TestHandleSplicesBothDirections(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(ctx, t)
	defer echoLn.Close()
	echoAddr := echoLn.Addr().(*net.TCPAddr)

	lc := net.ListenConfig{}
	socksLn, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer socksLn.Close()
	go serveFakeSOCKS5(ctx, t, socksLn)

	local, remote := net.Pipe()
	defer local.Close()

	driver := &stubDriver{ip: echoAddr.IP, port: echoAddr.Port}
	fw := New(driver, socksLn.Addr().String(), socksclient.Auth{}, slog.Default())

	go fw.Handle(remote)

	local.SetDeadline(time.Now().Add(2 * time.Second))
	testutil.AssertEcho(t, local, local, []byte("ping"))
}

func TestWarnOnceSuppressesRepeatsWithinTTL(t *testing.T) {
	fw := New(&stubDriver{}, "127.0.0.1:1", socksclient.Auth{}, slog.Default())

	calls := 0
	logged := make(chan struct{}, 10)
	fw.Logger = slog.New(slog.NewTextHandler(countingWriter{logged}, nil))

	fw.warnOnce("k", "first")
	fw.warnOnce("k", "second")
	fw.warnOnce("k", "third")

	close(logged)
	for range logged {
		calls++
	}
	if calls != 1 {
		t.Fatalf("expected exactly one log line within TTL, got %d", calls)
	}
}

type countingWriter struct {
	ch chan struct{}
}

func (w countingWriter) Write(p []byte) (int, error) {
	if strings.Contains(string(p), "msg=") {
		w.ch <- struct{}{}
	}
	return len(p), nil
}

var errPlaceholder = &stringError{"no original destination"}

type stringError struct{ s string }

func (e *stringError) Error() string { return e.s }

// serveFakeSOCKS5 accepts one connection on ln, completes no-auth SOCKS5
// negotiation, dials the requested destination itself (standing in for a
// real upstream proxy), and splices the two connections together.
func serveFakeSOCKS5(ctx context.Context, t *testing.T, ln net.Listener) {
	c, err := ln.Accept()
	if err != nil {
		return
	}
	defer c.Close()

	if _, err := txsocks5.NewNegotiationRequestFrom(c); err != nil {
		return
	}
	if _, err := txsocks5.NewNegotiationReply(txsocks5.MethodNone).WriteTo(c); err != nil {
		return
	}
	req, err := txsocks5.NewRequestFrom(c)
	if err != nil {
		return
	}

	dstIP := net.IP(req.DstAddr)
	dstPort := binary.BigEndian.Uint16(req.DstPort)
	dst := net.JoinHostPort(dstIP.String(), strconv.Itoa(int(dstPort)))

	var d net.Dialer
	up, err := d.DialContext(ctx, "tcp", dst)
	if err != nil {
		return
	}
	defer up.Close()

	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, txsocks5.ATYPIPv4, []byte{0, 0, 0, 0}, []byte{0, 0}).WriteTo(c); err != nil {
		return
	}

	go io.Copy(up, c)
	io.Copy(c, up)
}
