package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/hamed0406/hostsweep/internal/domain"
)

// TCPChecker attempts a TCP connect to host:Port.
type TCPChecker struct {
	Port    int
	Timeout time.Duration
	Dialer  *net.Dialer

	// Resolver is optional. When set, names are resolved through it and each
	// address is tried in turn; otherwise the dialer resolves on its own.
	Resolver Resolver
}

func NewTCPChecker(port int, timeout time.Duration) *TCPChecker {
	return &TCPChecker{
		Port:    port,
		Timeout: timeout,
		Dialer:  &net.Dialer{},
	}
}

func (c *TCPChecker) Check(ctx context.Context, host domain.Host) domain.ProbeOutcome {
	d := c.Dialer
	if d == nil {
		d = &net.Dialer{}
	}
	port := strconv.Itoa(c.Port)
	return bound(ctx, c.Timeout, func(ctx context.Context) (string, error) {
		targets := []string{string(host)}
		if c.Resolver != nil && !isIPLiteral(string(host)) {
			addrs, err := c.Resolver.LookupHost(ctx, string(host))
			if err != nil {
				return "", err
			}
			if len(addrs) == 0 {
				return "", errNoAddress
			}
			targets = addrs
		}

		var errs []error
		for _, t := range targets {
			addr := net.JoinHostPort(t, port)
			conn, err := d.DialContext(ctx, "tcp", addr)
			if err != nil {
				errs = append(errs, err)
				if ctx.Err() != nil {
					break
				}
				continue
			}
			_ = conn.Close()
			return "connected to " + addr, nil
		}
		return "", errors.Join(errs...)
	})
}
