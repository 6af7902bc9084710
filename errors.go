package updater

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

var (
	// ErrResolution is matched by every error that aborts a cycle before any account runs.
	ErrResolution = errors.New("address resolution failed")

	// ErrUnregisteredDomain marks a domain that was skipped because the provider never showed the added record.
	ErrUnregisteredDomain = errors.New("domain is not registered with the provider")

	// ErrConvergenceFailed is returned when a record still differs from the target after the attempt limit.
	ErrConvergenceFailed = errors.New("record did not converge")

	ErrAlreadyRunning   = errors.New("dns updater is already running")
	ErrNotRunning       = errors.New("dns updater is not running")
	ErrRestartExhausted = errors.New("could not stop dns updater")
)

// ResolutionError reports a malformed or unreachable address lookup.
type ResolutionError struct {
	Value string // raw lookup result, if there was one
	Err   error
}

func (e *ResolutionError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("WAN IP not found: %q: %s", e.Value, e.Err)
	}
	return fmt.Sprintf("WAN IP not found: %s", e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// ProviderError isolates a failed provider call to the account that made it.
type ProviderError struct {
	Account string
	Op      string
	Err     error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("account %s: %s: %s", e.Account, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// CheckAddress parses the raw output of an address lookup.
// The value must start with a digit and be a literal IPv4 address.
func CheckAddress(raw string) (netip.Addr, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return netip.Addr{}, &ResolutionError{Err: errors.New("empty response")}
	}
	if s[0] < '0' || s[0] > '9' {
		return netip.Addr{}, &ResolutionError{Value: s, Err: errors.New("response is not numeric")}
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, &ResolutionError{Value: s, Err: err}
	}
	if !addr.Is4() {
		return netip.Addr{}, &ResolutionError{Value: s, Err: errors.New("not an IPv4 address")}
	}
	return addr, nil
}
