package probe

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/hamed0406/hostsweep/internal/domain"
)

// Resolver is the subset of net.Resolver the probes need. It exists so tests
// can swap in a fake.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// DNSChecker reports whether a host name resolves to at least one address.
type DNSChecker struct {
	Resolver Resolver
	Timeout  time.Duration
}

func NewDNSChecker(r Resolver, timeout time.Duration) *DNSChecker {
	if r == nil {
		r = net.DefaultResolver
	}
	return &DNSChecker{Resolver: r, Timeout: timeout}
}

// Check resolves host. IP literals are not sent to the resolver: they are
// reported as Success straight away.
func (d *DNSChecker) Check(ctx context.Context, host domain.Host) domain.ProbeOutcome {
	if isIPLiteral(string(host)) {
		return domain.Success(0, "ip literal")
	}
	return bound(ctx, d.Timeout, func(ctx context.Context) (string, error) {
		addrs, err := d.Resolver.LookupHost(ctx, string(host))
		if err != nil {
			return "", classifyDNS(err)
		}
		if len(addrs) == 0 {
			return "", classifyDNS(errNoAddress)
		}
		return fmt.Sprintf("resolves to %d address(es)", len(addrs)), nil
	})
}

func isIPLiteral(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}
