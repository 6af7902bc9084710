package updater_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	updater "github.com/danarchy85/dns-updater"
)

func TestMalformedAddressAbortsCycle(t *testing.T) {
	for _, raw := range []string{"", "   ", "abc", "<html>1.2.3.4</html>", "::1", "1.2.3"} {
		p := newFakeProvider(aRecord("a.example", "1.1.1.1"))
		c := newTestClient(t, raw, account("K1", p, "a.example"), account("K2", p, "a.example"))

		err := c.RunCycle(context.Background())
		if !errors.Is(err, updater.ErrResolution) {
			t.Fatalf("%q: Expected ErrResolution; got %v", raw, err)
		}
		if got := updater.ResultOf(err); got != updater.CycleResolutionFailed {
			t.Fatalf("%q: Expected %s; got %s", raw, updater.CycleResolutionFailed, got)
		}
		if p.lists != 0 {
			t.Fatalf("%q: Expected no provider calls; got %d lists", raw, p.lists)
		}
	}
}

func TestResolverErrorIsResolutionFailure(t *testing.T) {
	p := newFakeProvider()
	c, err := updater.New([]updater.Account{account("K1", p, "a.example")},
		updater.UsingResolver(updater.ResolverFunc(func(context.Context) (netip.Addr, error) {
			return netip.Addr{}, errors.New("connection refused")
		})),
	)
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}
	err = c.RunCycle(context.Background())
	var re *updater.ResolutionError
	if !errors.As(err, &re) {
		t.Fatalf("Expected *ResolutionError; got %T %v", err, err)
	}
	if p.lists != 0 {
		t.Fatalf("Expected no provider calls; got %d", p.lists)
	}
}

func TestAddressResolvedOncePerCycle(t *testing.T) {
	var calls int
	r := updater.ResolverFunc(func(context.Context) (netip.Addr, error) {
		calls++
		return netip.MustParseAddr("2.2.2.2"), nil
	})
	c, err := updater.New([]updater.Account{
		account("K1", newFakeProvider(), "a.example", "b.example"),
		account("K2", newFakeProvider(), "c.example"),
	}, updater.UsingResolver(r), updater.WithPropagationDelay(0))
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}
	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %s", err)
	}
	if calls != 1 {
		t.Fatalf("Expected 1 resolution; got %d", calls)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := updater.New(nil); err == nil {
		t.Fatalf("Expected an error for no accounts")
	}
	if _, err := updater.New([]updater.Account{{Name: "K1"}}); err == nil {
		t.Fatalf("Expected an error for a missing provider")
	}
	bad := updater.Account{Name: "K1", Provider: newFakeProvider(), Domains: []updater.Domain{{Name: "a.example", Type: "MX"}}}
	if _, err := updater.New([]updater.Account{bad}); err == nil {
		t.Fatalf("Expected an error for an MX record")
	}
	if _, err := updater.New([]updater.Account{account("K1", newFakeProvider())}, updater.WithMaxAttempts(0)); err == nil {
		t.Fatalf("Expected an error for zero attempts")
	}
}

func TestCheckAddress(t *testing.T) {
	good := map[string]string{
		"203.0.113.7":     "203.0.113.7",
		"203.0.113.7\n":   "203.0.113.7",
		"  198.51.100.1 ": "198.51.100.1",
	}
	for in, want := range good {
		addr, err := updater.CheckAddress(in)
		if err != nil {
			t.Fatalf("%q: unexpected error: %s", in, err)
		}
		if expected, got := netip.MustParseAddr(want), addr; expected != got {
			t.Fatalf("Expected %q; got %q", expected, got)
		}
	}
	for _, in := range []string{"", "x1.2.3.4", "2001:db8::1", "300.1.1.1"} {
		if _, err := updater.CheckAddress(in); !errors.Is(err, updater.ErrResolution) {
			t.Fatalf("%q: Expected ErrResolution; got %v", in, err)
		}
	}
}
