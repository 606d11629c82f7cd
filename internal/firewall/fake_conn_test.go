package firewall

import (
	"net"
	"time"
)

// fakeConn is a minimal net.Conn stub used to exercise OriginalDst logic
// that only depends on LocalAddr.
type fakeConn struct {
	local net.Addr
}

func (f *fakeConn) LocalAddr() net.Addr              { return f.local }
func (f *fakeConn) RemoteAddr() net.Addr             { return nil }
func (f *fakeConn) Read([]byte) (int, error)         { return 0, nil }
func (f *fakeConn) Write([]byte) (int, error)        { return 0, nil }
func (f *fakeConn) Close() error                     { return nil }
func (f *fakeConn) SetDeadline(time.Time) error      { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }
