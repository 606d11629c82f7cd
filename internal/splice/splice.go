// Package splice implements the full-duplex byte copy between an accepted
// local socket and its SOCKS5-mediated remote socket (spec.md §4.4 Splice
// semantics).
//
// Unlike a typical proxy copy loop, Bidirectional deliberately does not
// accept a context for cancellation: spec.md §5 requires that a shutdown
// signal never abort a running forwarder mid-splice, since closing sockets
// out from under an in-flight copy could leave kernel state inconsistent
// with the firewall rules about to be reverted. Termination instead happens
// only when both directions reach EOF or an I/O error occurs, same as the
// teacher's unconditional two-way io.Copy, minus its ctx-triggered abort.
package splice

import (
	"errors"
	"io"
	"net"

	"golang.org/x/sync/errgroup"
)

// Bidirectional copies bytes between left and right in both directions until
// both halves have reached EOF or either side returns an I/O error.
//
// When one direction reaches EOF, the corresponding write half is half-closed
// via CloseWrite (if supported) so the other direction can continue to
// drain, rather than fully closing the connection out from under it.
func Bidirectional(left, right net.Conn) error {
	var g errgroup.Group

	g.Go(func() error {
		err := copyHalfClose(right, left)
		if err != nil {
			// A genuine I/O error (not a graceful EOF) ends the whole
			// splice immediately, unblocking whichever side is still
			// copying. This is distinct from the shutdown case: here the
			// connection itself has already failed.
			_ = left.Close()
			_ = right.Close()
		}
		return err
	})
	g.Go(func() error {
		err := copyHalfClose(left, right)
		if err != nil {
			_ = left.Close()
			_ = right.Close()
		}
		return err
	})

	return g.Wait()
}

// copyHalfClose copies from src to dst, then half-closes dst's write side
// (or fully closes it if half-close isn't available).
func copyHalfClose(dst, src net.Conn) error {
	_, err := io.Copy(dst, src)
	if err != nil && errors.Is(err, net.ErrClosed) {
		err = nil
	}

	if cw, ok := dst.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
		return err
	}
	_ = dst.Close()
	return err
}
