package updater

import (
	"context"
	"net/netip"
)

// StaticResolver constructs a resolver that always reports addr.
// The value is checked on every Resolve, so a malformed addr fails the cycle the same way a bad lookup would.
func StaticResolver(addr string) Resolver {
	return staticResolver(addr)
}

type staticResolver string

func (s staticResolver) Resolve(context.Context) (netip.Addr, error) {
	return CheckAddress(string(s))
}
