// Package socksclient issues SOCKS5 CONNECT requests to an upstream SOCKS5
// proxy on behalf of the Connection Forwarder.
//
// It wraps the wire-level primitives in github.com/txthinking/socks5 rather
// than reimplementing RFC 1928 framing, matching spec.md's framing of the
// SOCKS5 client wire protocol as a library contract, not part of the core.
package socksclient

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	txsocks5 "github.com/txthinking/socks5"
)

// Auth carries optional username/password credentials for the upstream
// SOCKS5 proxy. A zero-value Auth offers only the "no authentication"
// method, which is the common case for a forwarder whose proxy is reached
// over a private tunnel (spec.md treats auth as the proxy's concern).
type Auth struct {
	Username string
	Password string
}

// Connect dials proxyAddr and issues a CONNECT request for
// (dstIP, dstPort), returning the established net.Conn on success.
//
// dstIP is sent as its string form exactly as spec.md §8 requires ("the
// SOCKS5 CONNECT request issued carries exactly (ip_as_string, port)").
func Connect(dial func(network, address string) (net.Conn, error), proxyAddr string, auth Auth, dstIP net.IP, dstPort int) (net.Conn, error) {
	conn, err := dial("tcp", proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 dial %s: %w", proxyAddr, err)
	}

	if err := negotiate(conn, auth); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("socks5 negotiate: %w", err)
	}

	address := net.JoinHostPort(dstIP.String(), strconv.Itoa(dstPort))
	if err := connect(conn, address); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("socks5 connect %s: %w", address, err)
	}

	return conn, nil
}

func negotiate(conn net.Conn, auth Auth) error {
	methods := []byte{txsocks5.MethodNone}
	if auth.Username != "" {
		methods = append(methods, txsocks5.MethodUsernamePassword)
	}

	if _, err := txsocks5.NewNegotiationRequest(methods).WriteTo(conn); err != nil {
		return fmt.Errorf("write negotiation: %w", err)
	}

	neg, err := txsocks5.NewNegotiationReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read negotiation: %w", err)
	}

	switch neg.Method {
	case txsocks5.MethodNone:
		return nil
	case txsocks5.MethodUsernamePassword:
		if auth.Username == "" {
			return errors.New("server requires username/password")
		}
		if _, err := txsocks5.NewUserPassNegotiationRequest([]byte(auth.Username), []byte(auth.Password)).WriteTo(conn); err != nil {
			return fmt.Errorf("write userpass: %w", err)
		}
		rep, err := txsocks5.NewUserPassNegotiationReplyFrom(conn)
		if err != nil {
			return fmt.Errorf("read userpass: %w", err)
		}
		if rep.Status != txsocks5.UserPassStatusSuccess {
			return errors.New("auth failed")
		}
		return nil
	default:
		return fmt.Errorf("unsupported negotiation method: %d", neg.Method)
	}
}

func connect(conn net.Conn, address string) error {
	atyp, dstAddr, dstPort, err := txsocks5.ParseAddress(address)
	if err != nil {
		return fmt.Errorf("parse address: %w", err)
	}
	if atyp == txsocks5.ATYPDomain {
		dstAddr = dstAddr[1:]
	}

	if _, err := txsocks5.NewRequest(txsocks5.CmdConnect, atyp, dstAddr, dstPort).WriteTo(conn); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	rep, err := txsocks5.NewReplyFrom(conn)
	if err != nil {
		return fmt.Errorf("read reply: %w", err)
	}
	if rep.Rep != txsocks5.RepSuccess {
		return fmt.Errorf("connect failed: reply code %d", rep.Rep)
	}
	return nil
}
