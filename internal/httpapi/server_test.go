package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/hostsweep/internal/config"
)

func TestParseSweepRequest(t *testing.T) {
	cfg := config.Default()
	cfg.MaxSweepHosts = 2
	s := &Server{Config: cfg}

	req, err := s.parseSweepRequest(sweepPayload{Hosts: []string{" a.test ", "", "b.test"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.hosts) != 2 || req.hosts[0] != "a.test" {
		t.Fatalf("hosts not trimmed/filtered: %v", req.hosts)
	}
	if req.port != 80 || req.timeout != 2*time.Second {
		t.Fatalf("defaults not applied: %+v", req)
	}

	req, _ = s.parseSweepRequest(sweepPayload{Hosts: []string{"a"}, Port: 443, TimeoutMS: 120_000})
	if req.port != 443 || req.timeout != maxTimeout {
		t.Fatalf("overrides wrong: %+v", req)
	}

	if _, err := s.parseSweepRequest(sweepPayload{Hosts: []string{"a", "b", "c"}}); !errors.Is(err, errTooManyHosts) {
		t.Fatalf("want errTooManyHosts, got %v", err)
	}
}

func TestWantsCSV(t *testing.T) {
	cases := []struct {
		accept string
		want   bool
	}{
		{"text/csv", true},
		{"application/json, text/csv;q=0.5", true},
		{"application/json", false},
		{"", false},
	}
	for _, c := range cases {
		r := httptest.NewRequest("POST", "/api/sweeps", nil)
		r.Header.Set("Accept", c.accept)
		if got := wantsCSV(r); got != c.want {
			t.Fatalf("wantsCSV(%q)=%v want %v", c.accept, got, c.want)
		}
	}
}

// gaugePinger tracks how many pings overlap.
type gaugePinger struct {
	active, peak atomic.Int32
}

func (g *gaugePinger) Ping(ctx context.Context, _ string) error {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return nil
}
func (*gaugePinger) Name() string { return "gauge" }

func TestSweeps_ShareHostSlotsAcrossRequests(t *testing.T) {
	cfg := config.Default()
	cfg.Concurrency = 1
	cfg.PublicRPM = 0
	cfg.Timeout = time.Second
	pinger := &gaugePinger{}
	srv := NewServer(zap.NewNop(), cfg, pinger)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Post(ts.URL+"/api/sweeps", "application/json",
				strings.NewReader(`{"hosts":["127.0.0.1","127.0.0.2"],"port":1}`))
			if err != nil {
				t.Errorf("POST: %v", err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("status %d", resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	if p := pinger.peak.Load(); p != 1 {
		t.Fatalf("want one host probed at a time across sweeps, peak %d", p)
	}
	if s1, s2 := srv.hostSlots(), srv.hostSlots(); s1 != s2 {
		t.Fatal("host slots must be shared")
	}
}
