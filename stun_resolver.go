package updater

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/pion/stun"
)

// DefaultSTUNServers are used when STUNResolver is given no servers.
var DefaultSTUNServers = []string{
	"stun.l.google.com:19302",
	"stun.cloudflare.com:3478",
}

// STUNResolver constructs a resolver that sends a STUN binding request and reports the mapped address.
// Servers are tried in order until one answers.
func STUNResolver(server ...string) Resolver {
	if len(server) == 0 {
		server = DefaultSTUNServers
	}
	return &stunResolver{servers: server, timeout: 5 * time.Second}
}

type stunResolver struct {
	servers []string
	timeout time.Duration
}

func (s *stunResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	var errs []error
	for _, server := range s.servers {
		addr, err := s.query(ctx, server)
		if err == nil {
			return addr, nil
		}
		if ctx.Err() != nil {
			return netip.Addr{}, ctx.Err()
		}
		errs = append(errs, fmt.Errorf("%s: %w", server, err))
	}
	return netip.Addr{}, &ResolutionError{Err: errors.Join(errs...)}
}

func (s *stunResolver) query(ctx context.Context, server string) (netip.Addr, error) {
	raddr, err := net.ResolveUDPAddr("udp4", server)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve server address: %w", err)
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("dial server: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	deadline := time.Now().Add(s.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetDeadline(deadline)

	req, err := stun.Build(stun.TransactionID, stun.BindingRequest)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("build request: %w", err)
	}
	if _, err := req.WriteTo(conn); err != nil {
		return netip.Addr{}, fmt.Errorf("send request: %w", err)
	}

	buf := make([]byte, 1500)
	n, err := conn.Read(buf)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("read response: %w", err)
	}
	res := new(stun.Message)
	res.Raw = buf[:n]
	if err := res.Decode(); err != nil {
		return netip.Addr{}, fmt.Errorf("decode response: %w", err)
	}
	if res.TransactionID != req.TransactionID {
		return netip.Addr{}, errors.New("response does not match request")
	}

	var xorAddr stun.XORMappedAddress
	if err := xorAddr.GetFrom(res); err == nil {
		return CheckAddress(xorAddr.IP.String())
	}
	// RFC 3489 servers only send MAPPED-ADDRESS
	var mapped stun.MappedAddress
	if err := mapped.GetFrom(res); err != nil {
		return netip.Addr{}, fmt.Errorf("no mapped address in response: %w", err)
	}
	return CheckAddress(mapped.IP.String())
}
