package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/hamed0406/hostsweep/internal/domain"
)

// DefaultConcurrency bounds simultaneous host probes when none is configured.
// Each active host holds up to three sockets (ping, DNS, TCP).
const DefaultConcurrency = 32

// Prober runs every check for a single host. *probe.HostProber implements it.
type Prober interface {
	Probe(ctx context.Context, host domain.Host) domain.HostResult
}

// Progress is a snapshot taken each time a host changes state.
type Progress struct {
	Index   int
	Host    domain.Host
	State   domain.HostState
	Pending int
	Running int
	Done    int
	Total   int
}

type Coordinator struct {
	Logger      *zap.Logger
	Prober      Prober
	Concurrency int

	// Slots, if set, is shared with other coordinators so that several
	// concurrent sweeps together stay within its weight. Each host holds
	// one unit while it is probed.
	Slots *semaphore.Weighted

	// OnProgress, if set, is called on every state change. Calls are
	// serialized, so it must return quickly.
	OnProgress func(Progress)
}

func NewCoordinator(logger *zap.Logger, prober Prober, concurrency int) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	return &Coordinator{
		Logger:      logger,
		Prober:      prober,
		Concurrency: concurrency,
	}
}

// Run probes every host with at most Concurrency probers active at once and
// returns one result per host in input order. It does not stop early: a
// failing or panicking host is recorded and the sweep carries on. If ctx is
// cancelled the remaining hosts are still visited, and their checks resolve
// to failures immediately.
func (c *Coordinator) Run(ctx context.Context, hosts []domain.Host) domain.SweepResult {
	limit := c.Concurrency
	if limit < 1 {
		limit = 1
	}
	out := domain.SweepResult{
		ID:        uuid.NewString(),
		Results:   make([]domain.HostResult, len(hosts)),
		StartedAt: time.Now().UTC(),
	}
	log := c.logger().With(zap.String("sweep_id", out.ID))
	log.Info("sweep_started", zap.Int("hosts", len(hosts)), zap.Int("concurrency", limit))

	tr := newTracker(hosts, c.OnProgress)

	var g errgroup.Group
	g.SetLimit(limit)
	for i, h := range hosts {
		g.Go(func() error {
			// A failed Acquire means ctx is done; the host is still probed
			// and resolves at once against the cancelled context.
			if c.Slots != nil && c.Slots.Acquire(ctx, 1) == nil {
				defer c.Slots.Release(1)
			}
			tr.set(i, domain.StateRunning)
			start := time.Now()

			// Each worker owns exactly one slot.
			out.Results[i] = c.probe(ctx, h)

			tr.set(i, domain.StateDone)
			r := out.Results[i]
			log.Debug("host_done",
				zap.Int("index", i),
				zap.String("host", string(h)),
				zap.String("ping", r.Ping.ReportStatus()),
				zap.String("dns", r.DNS.ReportStatus()),
				zap.String("port", r.Port.ReportStatus()),
				zap.Duration("took", time.Since(start)),
			)
			return nil
		})
	}
	_ = g.Wait()

	out.FinishedAt = time.Now().UTC()
	log.Info("sweep_finished",
		zap.Int("hosts", len(hosts)),
		zap.Int("ping_ok", out.Count(domain.ProbePing)),
		zap.Int("dns_ok", out.Count(domain.ProbeDNS)),
		zap.Int("port_ok", out.Count(domain.ProbePort)),
		zap.Duration("took", out.FinishedAt.Sub(out.StartedAt)),
	)
	return out
}

// probe calls the prober and guarantees a complete HostResult even if the
// prober panics or leaves fields unset.
func (c *Coordinator) probe(ctx context.Context, h domain.Host) (r domain.HostResult) {
	defer func() {
		if p := recover(); p != nil {
			c.logger().Warn("prober_panic", zap.String("host", string(h)), zap.Any("panic", p))
			reason := fmt.Sprintf("prober panic: %v", p)
			r = domain.HostResult{
				Host: h,
				Ping: domain.Failure(0, reason),
				DNS:  domain.Failure(0, reason),
				Port: domain.Failure(0, reason),
			}
		}
	}()
	if c.Prober == nil {
		panic("no prober configured")
	}
	r = c.Prober.Probe(ctx, h)
	r.Host = h
	return r
}

func (c *Coordinator) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// tracker holds the per-host state machine.
type tracker struct {
	mu      sync.Mutex
	hosts   []domain.Host
	states  []domain.HostState
	running int
	done    int
	notify  func(Progress)
}

func newTracker(hosts []domain.Host, notify func(Progress)) *tracker {
	return &tracker{
		hosts:  hosts,
		states: make([]domain.HostState, len(hosts)),
		notify: notify,
	}
}

func (t *tracker) set(i int, s domain.HostState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch prev := t.states[i]; {
	case prev == domain.StatePending && s == domain.StateRunning:
		t.running++
	case prev == domain.StateRunning && s == domain.StateDone:
		t.running--
		t.done++
	default:
		return
	}
	t.states[i] = s

	if t.notify != nil {
		total := len(t.states)
		t.notify(Progress{
			Index:   i,
			Host:    t.hosts[i],
			State:   s,
			Pending: total - t.running - t.done,
			Running: t.running,
			Done:    t.done,
			Total:   total,
		})
	}
}
