package updater

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/miekg/dns"
)

// OpenDNS answers this name with the address the query came from.
const openDNSMyIP = "myip.opendns.com."

// DefaultDNSServers are the OpenDNS resolvers that understand openDNSMyIP.
var DefaultDNSServers = []string{
	"208.67.222.222:53",
	"208.67.220.220:53",
}

// DNSResolver constructs a resolver that looks up myip.opendns.com against the given name servers.
// Each server is a host:port pair; they are tried in order.
func DNSResolver(server ...string) Resolver {
	if len(server) == 0 {
		server = DefaultDNSServers
	}
	return &dnsResolver{name: openDNSMyIP, servers: server, client: new(dns.Client)}
}

type dnsResolver struct {
	name    string
	servers []string
	client  *dns.Client
}

func (r *dnsResolver) Resolve(ctx context.Context) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(r.name), dns.TypeA)

	var errs []error
	for _, server := range r.servers {
		resp, _, err := r.client.ExchangeContext(ctx, m, server)
		if err != nil {
			if ctx.Err() != nil {
				return netip.Addr{}, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("%s: %w", server, err))
			continue
		}
		if resp.Rcode != dns.RcodeSuccess {
			errs = append(errs, fmt.Errorf("%s: %s", server, dns.RcodeToString[resp.Rcode]))
			continue
		}
		for _, rr := range resp.Answer {
			if a, ok := rr.(*dns.A); ok {
				return CheckAddress(a.A.String())
			}
		}
		errs = append(errs, fmt.Errorf("%s: no A record in answer", server))
	}
	return netip.Addr{}, &ResolutionError{Err: errors.Join(errs...)}
}
