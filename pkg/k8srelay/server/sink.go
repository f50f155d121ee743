package server

import (
	"context"
	"fmt"
	"io"
	"net"
)

// NetSinkDialer dials the downstream reducer over a plain net.Conn — a unix
// socket by default, or a TCP address. It is the simplest
// SinkDialer implementation and the one the default binary wires up; a
// different one (e.g. writing to a file, or an in-process channel) is just
// as legal, since spec.md §1 leaves the sink's transport unspecified.
type NetSinkDialer struct {
	Network string // "unix" or "tcp"
	Address string
}

func (d NetSinkDialer) Dial(ctx context.Context) (io.WriteCloser, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, d.Network, d.Address)
	if err != nil {
		return nil, fmt.Errorf("dial downstream sink %s:%s: %w", d.Network, d.Address, err)
	}
	return conn, nil
}
