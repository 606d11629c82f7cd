// Package forwarder implements the Connection Forwarder (spec.md §4.4): for
// one accepted socket, recover its original destination, open a SOCKS5
// session to that destination, and splice both directions until EOF.
package forwarder

import (
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/die-net/redirtun/internal/firewall"
	"github.com/die-net/redirtun/internal/socksclient"
	"github.com/die-net/redirtun/internal/splice"
)

// warnDedupeTTL bounds how long a repeated per-destination warning is
// suppressed after the first occurrence, so a flapping or unreachable
// destination doesn't flood logs once per connection attempt.
const warnDedupeTTL = 30 * time.Second

// Forwarder holds the dependencies shared by every accepted connection: the
// firewall driver (for OriginalDst), the SOCKS5 proxy address and auth, and a
// log-deduplication cache.
//
// A Forwarder is immutable after construction and safe for concurrent use by
// many goroutines, one per accepted connection.
type Forwarder struct {
	Driver    firewall.Driver
	SocksAddr string
	SocksAuth socksclient.Auth
	Logger    *slog.Logger

	warned *cache.Cache
}

// New constructs a Forwarder.
func New(driver firewall.Driver, socksAddr string, auth socksclient.Auth, logger *slog.Logger) *Forwarder {
	return &Forwarder{
		Driver:    driver,
		SocksAddr: socksAddr,
		SocksAuth: auth,
		Logger:    logger,
		warned:    cache.New(warnDedupeTTL, warnDedupeTTL),
	}
}

// Handle implements the full per-connection contract of spec.md §4.4. It
// never returns an error to the caller: per-connection failures are local
// (spec.md §7, "per-connection errors never bubble") and are only logged.
func (f *Forwarder) Handle(local net.Conn) {
	defer local.Close()

	peer := local.RemoteAddr()

	dstIP, dstPort, err := f.Driver.OriginalDst(local)
	if err != nil {
		f.warnOnce("original_dst:"+peer.String(), "original destination recovery failed", "peer", peer, "error", err)
		return
	}

	remote, err := socksclient.Connect(net.Dial, f.SocksAddr, f.SocksAuth, dstIP, dstPort)
	if err != nil {
		f.warnOnce("socks_connect:"+dstIP.String(), "socks5 connect failed", "peer", peer, "dst", net.JoinHostPort(dstIP.String(), strconv.Itoa(dstPort)), "error", err)
		return
	}
	defer remote.Close()

	f.Logger.Debug("forwarding connection", "peer", peer, "dst", net.JoinHostPort(dstIP.String(), strconv.Itoa(dstPort)))

	if err := splice.Bidirectional(local, remote); err != nil {
		f.Logger.Debug("splice ended", "peer", peer, "error", err)
	}
}

// warnOnce logs msg at warn level, suppressing repeats of the same key
// within warnDedupeTTL.
func (f *Forwarder) warnOnce(key, msg string, args ...any) {
	if _, found := f.warned.Get(key); found {
		return
	}
	f.warned.SetDefault(key, struct{}{})
	f.Logger.Warn(msg, args...)
}
