// Package network reports whether the remote side is reachable.
package network

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// Checker is consulted before any metadata fetch or transfer start.
type Checker interface {
	Online(ctx context.Context) bool
}

// New returns a TCP probe for addr, or an always-online checker when addr is
// empty.
func New(addr string, timeout time.Duration) Checker {
	if addr == "" {
		return AlwaysOnline{}
	}
	return NewTCPProbe(addr, timeout)
}

type AlwaysOnline struct{}

func (AlwaysOnline) Online(context.Context) bool { return true }

// TCPProbe treats a successful TCP handshake with addr as network presence.
type TCPProbe struct {
	addr    string
	timeout time.Duration
}

func NewTCPProbe(addr string, timeout time.Duration) *TCPProbe {
	return &TCPProbe{addr: addr, timeout: timeout}
}

func (p *TCPProbe) Online(ctx context.Context) bool {
	d := net.Dialer{Timeout: p.timeout}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Static is a switchable checker for tests and manual overrides.
type Static struct {
	online atomic.Bool
}

func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) Set(online bool) {
	s.online.Store(online)
}

func (s *Static) Online(context.Context) bool {
	return s.online.Load()
}
