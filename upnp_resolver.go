package updater

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	"github.com/huin/goupnp/dcps/internetgateway2"
)

// UPnPResolver constructs a resolver that asks the local Internet Gateway Device for its external address.
func UPnPResolver() Resolver {
	return ResolverFunc(resolveUPnP)
}

type externalIPClient interface {
	GetExternalIPAddressCtx(ctx context.Context) (string, error)
}

func resolveUPnP(ctx context.Context) (netip.Addr, error) {
	var clients []externalIPClient
	var errs []error

	ip2, _, err := internetgateway2.NewWANIPConnection2ClientsCtx(ctx)
	errs = append(errs, err)
	for _, c := range ip2 {
		clients = append(clients, c)
	}
	ip1, _, err := internetgateway2.NewWANIPConnection1ClientsCtx(ctx)
	errs = append(errs, err)
	for _, c := range ip1 {
		clients = append(clients, c)
	}
	ppp, _, err := internetgateway2.NewWANPPPConnection1ClientsCtx(ctx)
	errs = append(errs, err)
	for _, c := range ppp {
		clients = append(clients, c)
	}

	if len(clients) == 0 {
		errs = append(errs, errors.New("no UPnP gateway found"))
		return netip.Addr{}, &ResolutionError{Err: errors.Join(errs...)}
	}
	return firstExternalIP(ctx, clients)
}

func firstExternalIP(ctx context.Context, clients []externalIPClient) (netip.Addr, error) {
	var errs []error
	for _, c := range clients {
		s, err := c.GetExternalIPAddressCtx(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("gateway: %w", err))
			continue
		}
		addr, err := CheckAddress(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return addr, nil
	}
	return netip.Addr{}, &ResolutionError{Err: errors.Join(errs...)}
}
