package updater_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	updater "github.com/danarchy85/dns-updater"
)

func TestReplaceStaleRecord(t *testing.T) {
	p := newFakeProvider(aRecord("a.example", "1.1.1.1"))
	c := newTestClient(t, "2.2.2.2", account("K1", p, "a.example"))

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %s", err)
	}

	if len(p.removes) != 1 || p.removes[0] != aRecord("a.example", "1.1.1.1") {
		t.Fatalf("Expected one remove of 1.1.1.1; got %+v", p.removes)
	}
	if len(p.adds) != 1 || p.adds[0] != aRecord("a.example", "2.2.2.2") {
		t.Fatalf("Expected one add of 2.2.2.2; got %+v", p.adds)
	}
	if got := p.values("a.example"); len(got) != 1 || got[0] != "2.2.2.2" {
		t.Fatalf("Expected [2.2.2.2]; got %v", got)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	p := newFakeProvider(aRecord("a.example", "1.1.1.1"), aRecord("b.example", "2.2.2.2"))
	c := newTestClient(t, "2.2.2.2", account("K1", p, "a.example", "b.example"))

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("first RunCycle failed: %s", err)
	}
	adds, removes := p.calls()
	if adds != 1 || removes != 1 {
		t.Fatalf("Expected 1 add and 1 remove; got %d and %d", adds, removes)
	}

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("second RunCycle failed: %s", err)
	}
	if a, r := p.calls(); a != adds || r != removes {
		t.Fatalf("Expected no mutations on the second run; got %d adds and %d removes", a-adds, r-removes)
	}
}

func TestDuplicateRecordsAreCollapsed(t *testing.T) {
	p := newFakeProvider(
		aRecord("a.example", "2.2.2.2"),
		aRecord("a.example", "1.1.1.1"),
		aRecord("a.example", "3.3.3.3"),
	)
	c := newTestClient(t, "2.2.2.2", account("K1", p, "a.example"))

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %s", err)
	}
	if got := p.values("a.example"); len(got) != 1 || got[0] != "2.2.2.2" {
		t.Fatalf("Expected [2.2.2.2]; got %v", got)
	}
	if adds, _ := p.calls(); adds != 0 {
		t.Fatalf("Expected the existing target to be kept; got %d adds", adds)
	}
}

func TestRepeatedTargetIsReplacedOnce(t *testing.T) {
	p := newFakeProvider(aRecord("a.example", "2.2.2.2"), aRecord("a.example", "2.2.2.2"))
	c := newTestClient(t, "2.2.2.2", account("K1", p, "a.example"))

	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %s", err)
	}
	if got := p.values("a.example"); len(got) != 1 {
		t.Fatalf("Expected a single record; got %v", got)
	}
}

func TestListErrorIsolatesAccount(t *testing.T) {
	limited := newFakeProvider(aRecord("a.example", "1.1.1.1"), aRecord("c.example", "1.1.1.1"))
	limited.listErr = errors.New("rate limit exceeded")
	healthy := newFakeProvider(aRecord("b.example", "1.1.1.1"))

	c := newTestClient(t, "2.2.2.2",
		account("K1", limited, "a.example", "c.example"),
		account("K2", healthy, "b.example"),
	)
	err := c.RunCycle(context.Background())
	if err == nil {
		t.Fatalf("Expected an error; got err == nil")
	}
	var pe *updater.ProviderError
	if !errors.As(err, &pe) || pe.Account != "K1" {
		t.Fatalf("Expected a provider error for K1; got %v", err)
	}
	if updater.ResultOf(err) != updater.CycleProviderFailed {
		t.Fatalf("Expected %s; got %s", updater.CycleProviderFailed, updater.ResultOf(err))
	}
	if adds, removes := limited.calls(); adds+removes != 0 {
		t.Fatalf("Expected no mutations for a failing account; got %d adds and %d removes", adds, removes)
	}
	if limited.lists != 1 {
		t.Fatalf("Expected the account to stop after the first failed listing; got %d listings", limited.lists)
	}
	if got := healthy.values("b.example"); len(got) != 1 || got[0] != "2.2.2.2" {
		t.Fatalf("Expected the second account to be reconciled; got %v", got)
	}
}

func TestUnregisteredDomainIsSkipped(t *testing.T) {
	p := newFakeProvider(aRecord("b.example", "1.1.1.1"))
	p.ignoreAdds = true
	c := newTestClient(t, "2.2.2.2", account("K1", p, "new.example", "b.example"))

	results, err := c.Reconcile(context.Background(), account("K1", p, "new.example"), netip.MustParseAddr("2.2.2.2"))
	if err != nil {
		t.Fatalf("Reconcile failed: %s", err)
	}
	if len(results) != 1 || results[0].Status != updater.Skipped {
		t.Fatalf("Expected new.example to be skipped; got %+v", results)
	}
	if !errors.Is(results[0].Err, updater.ErrUnregisteredDomain) {
		t.Fatalf("Expected ErrUnregisteredDomain; got %v", results[0].Err)
	}

	p.ignoreAdds = false
	if err := c.RunCycle(context.Background()); err != nil {
		t.Fatalf("Expected a skipped domain not to fail the cycle; got %s", err)
	}
	if got := p.values("b.example"); len(got) != 1 || got[0] != "2.2.2.2" {
		t.Fatalf("Expected b.example to be reconciled after the skip; got %v", got)
	}
}

func TestConvergenceIsBounded(t *testing.T) {
	p := newFakeProvider(aRecord("a.example", "1.1.1.1"), aRecord("b.example", "1.1.1.1"))
	p.frozen = true
	c, err := updater.New([]updater.Account{account("K1", p, "a.example", "b.example")},
		updater.UsingResolver(updater.StaticResolver("2.2.2.2")),
		updater.WithPropagationDelay(0),
		updater.WithMaxAttempts(3),
	)
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}

	results, err := c.Reconcile(context.Background(), account("K1", p, "a.example", "b.example"), netip.MustParseAddr("2.2.2.2"))
	if !errors.Is(err, updater.ErrConvergenceFailed) {
		t.Fatalf("Expected ErrConvergenceFailed; got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected both domains to be attempted; got %d results", len(results))
	}
	for _, r := range results {
		if r.Status != updater.Failed || r.Attempts != 3 {
			t.Fatalf("Expected 3 failed attempts; got %+v", r)
		}
	}
	if adds, removes := p.calls(); adds != 6 || removes != 6 {
		t.Fatalf("Expected 6 adds and 6 removes; got %d and %d", adds, removes)
	}
}

func TestReconcileHonorsCancellation(t *testing.T) {
	p := newFakeProvider(aRecord("a.example", "1.1.1.1"))
	c, err := updater.New([]updater.Account{account("K1", p, "a.example")},
		updater.UsingResolver(updater.StaticResolver("2.2.2.2")),
	)
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Reconcile(ctx, account("K1", p, "a.example"), netip.MustParseAddr("2.2.2.2"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled; got %v", err)
	}
}
