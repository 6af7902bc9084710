package updater

import (
	"context"
	"fmt"
	"net/netip"
)

// TypeA is the only record type managed by the updater.
const TypeA = "A"

type Resolver interface {
	Resolve(context.Context) (netip.Addr, error)
}

// ResolverFunc adapts an ordinary function to the Resolver interface.
type ResolverFunc func(context.Context) (netip.Addr, error)

func (f ResolverFunc) Resolve(ctx context.Context) (netip.Addr, error) {
	return f(ctx)
}

// Provider manages the records visible to a single provider credential.
//
// Add and remove give no guarantee that the change is visible;
// callers confirm it with a later ListRecords.
type Provider interface {
	ListRecords(ctx context.Context) ([]Record, error)
	AddRecord(ctx context.Context, r Record) error
	RemoveRecord(ctx context.Context, r Record) error
}

// Record is one DNS record as seen by a Provider.
type Record struct {
	Name  string
	Type  string
	Value string
}

func (r Record) String() string {
	return fmt.Sprintf("%s %s %s", r.Name, r.Type, r.Value)
}

// Domain is a managed record name and its type.
type Domain struct {
	Name string
	Type string
}

// Account is one provider credential and the domains it manages.
// Name is a label for log output and never holds the credential itself.
type Account struct {
	Name     string
	Provider Provider
	Domains  []Domain
}

func (a Account) String() string {
	return a.Name
}
