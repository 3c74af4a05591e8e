package probe

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/hamed0406/hostsweep/internal/domain"
)

// fakeChecker returns a fixed outcome after an optional delay.
type fakeChecker struct {
	out   domain.ProbeOutcome
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeChecker) Check(ctx context.Context, host domain.Host) domain.ProbeOutcome {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.out
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context, string) error { return f.err }
func (f fakePinger) Name() string                         { return "fake" }

func TestHostProber_FillsEverySlot(t *testing.T) {
	ping := &fakeChecker{out: domain.Success(0, "ping")}
	dns := &fakeChecker{out: domain.Failure(0, "dns")}
	port := &fakeChecker{out: domain.Timeout(0)}

	res := NewHostProber(zap.NewNop(), ping, dns, port).Probe(context.Background(), "h1")

	assert.Equal(t, domain.Host("h1"), res.Host)
	assert.Equal(t, "ping", res.Ping.Reason)
	assert.Equal(t, "dns", res.DNS.Reason)
	assert.Equal(t, domain.StatusTimeout, res.Port.Status)
	for _, c := range []*fakeChecker{ping, dns, port} {
		assert.EqualValues(t, 1, c.calls.Load())
	}
}

func TestHostProber_ProbesRunConcurrently(t *testing.T) {
	d := 100 * time.Millisecond
	p := NewHostProber(nil,
		&fakeChecker{out: domain.Success(0, ""), delay: d},
		&fakeChecker{out: domain.Success(0, ""), delay: d},
		&fakeChecker{out: domain.Success(0, ""), delay: d},
	)
	start := time.Now()
	p.Probe(context.Background(), "h")
	assert.Less(t, time.Since(start), 2*d, "probes looked serialized")
}

func TestHostProber_MissingCheckerIsFailure(t *testing.T) {
	res := NewHostProber(nil, nil, &fakeChecker{out: domain.Success(0, "")}, nil).
		Probe(context.Background(), "h")
	assert.Equal(t, domain.StatusFailure, res.Ping.Status)
	assert.Equal(t, "not run", res.Ping.Reason)
	assert.True(t, res.DNS.OK())
	assert.Equal(t, domain.StatusFailure, res.Port.Status)
}

func TestHostProber_PanickingCheckerIsContained(t *testing.T) {
	boom := CheckerFunc(func(context.Context, domain.Host) domain.ProbeOutcome { panic("kaboom") })
	res := NewHostProber(nil, boom, boom, boom).Probe(context.Background(), "h")
	for _, o := range []domain.ProbeOutcome{res.Ping, res.DNS, res.Port} {
		assert.Equal(t, domain.ReportFail, o.ReportStatus())
		assert.Contains(t, o.Reason, "kaboom")
	}
}

// Loopback with a closed port: ping and DNS pass, port fails.
func TestNew_LoopbackClosedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	p := New(zap.NewNop(), Options{Port: port, Timeout: time.Second, Pinger: fakePinger{}})
	res := p.Probe(context.Background(), "127.0.0.1")

	assert.Equal(t, "OK", res.Ping.ReportStatus())
	assert.Equal(t, "OK", res.DNS.ReportStatus())
	assert.Equal(t, "FAIL", res.Port.ReportStatus())
}

// An unresolvable name fails every probe, including a real ICMP pinger that
// never gets past resolution.
func TestNew_NonexistentHost(t *testing.T) {
	p := New(zap.NewNop(), Options{
		Port:    80,
		Timeout: 2 * time.Second,
		Pinger:  NewICMPPinger(nil, false),
	})
	res := p.Probe(context.Background(), "nonexistent.invalid.tld")

	assert.Equal(t, "FAIL", res.Ping.ReportStatus())
	assert.Equal(t, "FAIL", res.DNS.ReportStatus())
	assert.Equal(t, "FAIL", res.Port.ReportStatus())
}
