package updater

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/multierr"
)

type DomainStatus int

const (
	Unchanged DomainStatus = iota
	Updated
	Skipped
	Failed
)

func (s DomainStatus) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("DomainStatus(%d)", int(s))
}

// DomainResult describes what reconciliation did to one domain.
type DomainResult struct {
	Domain   Domain
	Previous string // value before reconciliation, empty if absent
	Current  string // value after reconciliation, empty if absent
	Status   DomainStatus
	Attempts int // remove/add rounds performed
	Err      error
}

func (r DomainResult) String() string {
	s := fmt.Sprintf("%s %s record: %s (%s)", r.Domain.Name, r.Domain.Type, r.Current, r.Status)
	if r.Err != nil {
		s += ": " + r.Err.Error()
	}
	return s
}

// Reconcile makes every domain of acct point at addr.
//
// Domains are handled strictly in order because each convergence must observe the provider after its own changes.
// A failed ListRecords aborts the rest of the account.
// A domain that does not converge is reported but later domains still run.
func (c *Client) Reconcile(ctx context.Context, acct Account, addr netip.Addr) ([]DomainResult, error) {
	target := addr.String()
	var results []DomainResult
	var errs error
	for _, d := range acct.Domains {
		c.logger.Printf("Checking: %s", d.Name)
		res, err := c.converge(ctx, acct, d, target)
		results = append(results, res)
		if err == nil {
			continue
		}
		var pe *ProviderError
		if errors.As(err, &pe) || ctx.Err() != nil {
			return results, multierr.Append(errs, err)
		}
		errs = multierr.Append(errs, err)
	}
	return results, errs
}

func (c *Client) converge(ctx context.Context, acct Account, d Domain, target string) (DomainResult, error) {
	res := DomainResult{Domain: d}

	values, err := c.liveValues(ctx, acct, d)
	if err != nil {
		res.Status, res.Err = Failed, err
		return res, err
	}
	if len(values) > 0 {
		res.Previous = values[0]
	}

	for !converged(values, target) {
		if res.Attempts == c.maxAttempts {
			res.Current = strings.Join(values, ",")
			res.Status = Failed
			res.Err = fmt.Errorf("%s: %w after %d attempts", d.Name, ErrConvergenceFailed, res.Attempts)
			return res, res.Err
		}
		res.Attempts++
		c.logger.Printf("%s: DNS is not current!", d.Name)

		// a duplicated target is removed as a whole and added back once
		matches := 0
		for _, v := range values {
			if v == target {
				matches++
			}
		}
		for _, v := range dedupe(values) {
			if v == target && matches == 1 {
				continue
			}
			c.logger.Printf("Removing %s from %s", v, d.Name)
			if err := acct.Provider.RemoveRecord(ctx, Record{Name: d.Name, Type: d.Type, Value: v}); err != nil {
				c.logger.Printf("remove %s from %s: %s", v, d.Name, err)
			}
		}
		if matches != 1 {
			c.logger.Printf("Adding %s to %s", target, d.Name)
			if err := acct.Provider.AddRecord(ctx, Record{Name: d.Name, Type: d.Type, Value: target}); err != nil {
				c.logger.Printf("add %s to %s: %s", target, d.Name, err)
			}
		}

		if err := sleep(ctx, c.delay); err != nil {
			res.Status, res.Err = Failed, err
			return res, err
		}

		values, err = c.liveValues(ctx, acct, d)
		if err != nil {
			res.Status, res.Err = Failed, err
			return res, err
		}
		c.logger.Printf("Value: %s", strings.Join(values, ","))

		if len(values) == 0 {
			c.logger.Printf("Failed to add record for: %s!", d.Name)
			c.logger.Printf(" ! Skipping %s since it may be newly registered, or not registered at all...", d.Name)
			res.Status = Skipped
			res.Err = fmt.Errorf("%s: %w", d.Name, ErrUnregisteredDomain)
			return res, nil
		}
	}

	res.Current = target
	if res.Attempts > 0 {
		res.Status = Updated
	}
	return res, nil
}

// liveValues fetches the account's records and returns the non-empty values stored for d.
func (c *Client) liveValues(ctx context.Context, acct Account, d Domain) ([]string, error) {
	live, err := acct.Provider.ListRecords(ctx)
	if err != nil {
		return nil, &ProviderError{Account: acct.Name, Op: "list records", Err: err}
	}
	var values []string
	for _, r := range live {
		if strings.EqualFold(r.Name, d.Name) && strings.EqualFold(r.Type, d.Type) && r.Value != "" {
			values = append(values, r.Value)
		}
	}
	return values, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// converged reports whether exactly one value is present and it equals target.
func converged(values []string, target string) bool {
	return len(values) == 1 && values[0] == target
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
