package probe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/hostsweep/internal/domain"
)

// HostProber runs the ping, DNS and port checks for one host.
type HostProber struct {
	Logger *zap.Logger
	Ping   Checker
	DNS    Checker
	Port   Checker
}

func NewHostProber(logger *zap.Logger, ping, dns, port Checker) *HostProber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostProber{Logger: logger, Ping: ping, DNS: dns, Port: port}
}

// Options configures the default set of checkers built by New.
type Options struct {
	Port     int
	Timeout  time.Duration
	Pinger   Pinger
	Resolver Resolver
}

// New wires the three standard checkers from opts.
func New(logger *zap.Logger, opts Options) *HostProber {
	pinger := opts.Pinger
	if pinger == nil {
		pinger = unavailablePinger{}
	}
	tcp := NewTCPChecker(opts.Port, opts.Timeout)
	tcp.Resolver = opts.Resolver
	return NewHostProber(logger,
		NewPingChecker(pinger, opts.Timeout),
		NewDNSChecker(opts.Resolver, opts.Timeout),
		tcp,
	)
}

// Probe runs the three checks concurrently and joins them. It never fails:
// a host where everything is down simply gets three failed outcomes.
func (p *HostProber) Probe(ctx context.Context, host domain.Host) domain.HostResult {
	res := domain.HostResult{Host: host}

	var wg sync.WaitGroup
	run := func(kind domain.ProbeKind, c Checker, dst *domain.ProbeOutcome) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			*dst = safeCheck(ctx, c, host)
			if !dst.OK() {
				p.Logger.Debug("probe_failed",
					zap.String("host", string(host)),
					zap.String("probe", string(kind)),
					zap.Stringer("status", dst.Status),
					zap.String("reason", dst.Reason),
					zap.Duration("latency", dst.Latency),
				)
			}
		}()
	}
	run(domain.ProbePing, p.Ping, &res.Ping)
	run(domain.ProbeDNS, p.DNS, &res.DNS)
	run(domain.ProbePort, p.Port, &res.Port)
	wg.Wait()

	return res
}

// safeCheck guards against checkers that are missing or break the
// never-panic contract.
func safeCheck(ctx context.Context, c Checker, host domain.Host) (out domain.ProbeOutcome) {
	if c == nil {
		return domain.Failure(0, "not run")
	}
	defer func() {
		if r := recover(); r != nil {
			out = domain.Failure(0, fmt.Sprintf("probe panic: %v", r))
		}
	}()
	return c.Check(ctx, host)
}
