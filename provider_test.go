package updater_test

import (
	"context"
	"sync"

	updater "github.com/danarchy85/dns-updater"
)

// fakeProvider applies mutations immediately and remembers every call.
type fakeProvider struct {
	mu      sync.Mutex
	records []updater.Record
	adds    []updater.Record
	removes []updater.Record
	lists   int

	listErr    error
	ignoreAdds bool // added records never become visible
	frozen     bool // list always returns the initial records
}

func newFakeProvider(records ...updater.Record) *fakeProvider {
	return &fakeProvider{records: records}
}

func (p *fakeProvider) ListRecords(ctx context.Context) ([]updater.Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lists++
	if p.listErr != nil {
		return nil, p.listErr
	}
	return append([]updater.Record(nil), p.records...), nil
}

func (p *fakeProvider) AddRecord(ctx context.Context, r updater.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adds = append(p.adds, r)
	if !p.ignoreAdds && !p.frozen {
		p.records = append(p.records, r)
	}
	return nil
}

func (p *fakeProvider) RemoveRecord(ctx context.Context, r updater.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removes = append(p.removes, r)
	if p.frozen {
		return nil
	}
	kept := p.records[:0]
	for _, rec := range p.records {
		if rec != r {
			kept = append(kept, rec)
		}
	}
	p.records = kept
	return nil
}

func (p *fakeProvider) calls() (adds, removes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.adds), len(p.removes)
}

func (p *fakeProvider) values(name string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, r := range p.records {
		if r.Name == name && r.Type == updater.TypeA {
			out = append(out, r.Value)
		}
	}
	return out
}

func aRecord(name, value string) updater.Record {
	return updater.Record{Name: name, Type: updater.TypeA, Value: value}
}

func account(name string, p updater.Provider, domains ...string) updater.Account {
	a := updater.Account{Name: name, Provider: p}
	for _, d := range domains {
		a.Domains = append(a.Domains, updater.Domain{Name: d, Type: updater.TypeA})
	}
	return a
}

func newTestClient(t interface{ Fatalf(string, ...any) }, addr string, accounts ...updater.Account) *updater.Client {
	c, err := updater.New(accounts,
		updater.UsingResolver(updater.StaticResolver(addr)),
		updater.WithPropagationDelay(0),
	)
	if err != nil {
		t.Fatalf("New failed: %s", err)
	}
	return c
}
