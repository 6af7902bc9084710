package updater

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// DefaultResolverURL answers with the bare address.
const DefaultResolverURL = "https://api.ipify.org"

// DefaultResolver is a shared resolver for DefaultResolverURL.
// Clients built by New get their own copy, so options applied to a client never reach it.
var DefaultResolver = WebResolver(DefaultResolverURL)

const (
	// DefaultPropagationDelay is the pause between mutating a record and reading it back.
	DefaultPropagationDelay = 2 * time.Second

	// DefaultMaxAttempts bounds the remove/add/poll loop for one domain.
	DefaultMaxAttempts = 5
)

var discard = log.New(io.Discard, "", log.LstdFlags)

// New returns a Client that reconciles the domains of every account, in order.
func New(accounts []Account, options ...clientOption) (*Client, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("updater.New: at least one account is required")
	}
	for i, a := range accounts {
		if a.Provider == nil {
			return nil, fmt.Errorf("updater.New: account %d (%s) has no provider", i, a.Name)
		}
		for _, d := range a.Domains {
			if !strings.EqualFold(d.Type, TypeA) {
				return nil, fmt.Errorf("updater.New: %s: unsupported record type %q", d.Name, d.Type)
			}
		}
	}
	c := &Client{
		Resolver:    WebResolver(DefaultResolverURL),
		accounts:    accounts,
		delay:       DefaultPropagationDelay,
		maxAttempts: DefaultMaxAttempts,
	}
	for i, opt := range options {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("updater.New: option %d returned an error: %s", i, err)
		}
	}

	// this lets us propagate the logger to dependencies that use one if WithLogger was called before all of the dependencies were registered
	withLogger(c.logger)(c)
	return c, nil
}

type clientOption func(*Client) error

func UsingResolver(resolver Resolver) clientOption {
	return func(c *Client) error {
		if resolver == nil {
			resolver = WebResolver(DefaultResolverURL)
		}
		c.Resolver = resolver
		return nil
	}
}

func UsingWebResolver(serviceURL ...string) clientOption {
	return func(c *Client) error {
		r, err := parseWebResolver(serviceURL...)
		if err != nil {
			return err
		}
		c.Resolver = r
		return nil
	}
}

func WithLogger(logger *log.Logger) clientOption {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

func withLogger(logger *log.Logger) clientOption {
	return func(c *Client) error {
		if logger == nil {
			logger = discard
		}
		c.logger = logger
		type setLogger interface {
			SetLogger(*log.Logger)
		}
		for _, a := range c.accounts {
			if p, ok := a.Provider.(setLogger); ok {
				p.SetLogger(logger)
			}
		}
		if r, ok := c.Resolver.(setLogger); ok {
			r.SetLogger(logger)
		}
		return nil
	}
}

func UsingHTTPClient(httpclient *http.Client) clientOption {
	return func(c *Client) error {
		if httpclient == nil {
			httpclient = http.DefaultClient
		}
		type setHTTPClient interface {
			SetHTTPClient(*http.Client)
		}
		if r, ok := c.Resolver.(setHTTPClient); ok {
			r.SetHTTPClient(httpclient)
		}
		for _, a := range c.accounts {
			if p, ok := a.Provider.(setHTTPClient); ok {
				p.SetHTTPClient(httpclient)
			}
		}
		return nil
	}
}

// WithPropagationDelay sets how long to wait for the provider after each remove/add pair.
func WithPropagationDelay(d time.Duration) clientOption {
	return func(c *Client) error {
		if d < 0 {
			return errors.New("propagation delay cannot be negative")
		}
		c.delay = d
		return nil
	}
}

// WithMaxAttempts sets how many remove/add rounds a domain gets before it is reported as not converged.
func WithMaxAttempts(n int) clientOption {
	return func(c *Client) error {
		if n < 1 {
			return fmt.Errorf("max attempts must be at least 1; got %d", n)
		}
		c.maxAttempts = n
		return nil
	}
}

type Client struct {
	Resolver
	accounts    []Account
	logger      *log.Logger
	delay       time.Duration
	maxAttempts int
}

// RunCycle resolves the public address once and reconciles every account with it.
//
// A resolution failure aborts the cycle before any provider is contacted and matches ErrResolution.
// Account failures do not stop later accounts; they are combined into the returned error.
func (c *Client) RunCycle(ctx context.Context) error {
	addr, err := c.currentAddress(ctx)
	if err != nil {
		return err
	}
	c.logger.Printf("WAN IP: %s", addr)

	var errs error
	for _, acct := range c.accounts {
		c.logger.Printf("checking domains for account %s", acct)
		results, err := c.Reconcile(ctx, acct, addr)
		for _, r := range results {
			c.logger.Printf("%s", r)
		}
		if err != nil {
			c.logger.Printf("account %s failed: %s", acct, err)
			errs = multierr.Append(errs, err)
			if ctx.Err() != nil {
				return multierr.Append(errs, ctx.Err())
			}
		}
	}
	return errs
}

func (c *Client) currentAddress(ctx context.Context) (netip.Addr, error) {
	addr, err := c.Resolve(ctx)
	if err != nil {
		if errors.Is(err, ErrResolution) {
			return netip.Addr{}, err
		}
		return netip.Addr{}, &ResolutionError{Err: err}
	}
	// resolvers are free to return anything; only a literal IPv4 address can be published
	if !addr.IsValid() {
		return netip.Addr{}, &ResolutionError{Err: errors.New("resolver returned no address")}
	}
	return CheckAddress(addr.String())
}

// CycleResult classifies the error returned by RunCycle.
type CycleResult int

const (
	CycleSucceeded CycleResult = iota
	CycleResolutionFailed
	CycleProviderFailed
	CycleCanceled
)

func (r CycleResult) String() string {
	switch r {
	case CycleSucceeded:
		return "success"
	case CycleResolutionFailed:
		return "resolution failed"
	case CycleProviderFailed:
		return "provider error"
	case CycleCanceled:
		return "canceled"
	}
	return fmt.Sprintf("CycleResult(%d)", int(r))
}

func ResultOf(err error) CycleResult {
	switch {
	case err == nil:
		return CycleSucceeded
	case errors.Is(err, ErrResolution):
		return CycleResolutionFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CycleCanceled
	}
	return CycleProviderFailed
}
