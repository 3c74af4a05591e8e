package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/hostsweep/internal/domain"
)

// Ping backend selection modes.
const (
	PingAuto = "auto"
	PingICMP = "icmp"
	PingExec = "exec"
)

// Pinger sends a single echo request and returns nil if the host answered
// before ctx expired.
type Pinger interface {
	Ping(ctx context.Context, host string) error
	Name() string
}

// PingChecker adapts a Pinger to the Checker interface.
type PingChecker struct {
	Pinger  Pinger
	Timeout time.Duration
}

func NewPingChecker(p Pinger, timeout time.Duration) *PingChecker {
	return &PingChecker{Pinger: p, Timeout: timeout}
}

func (c *PingChecker) Check(ctx context.Context, host domain.Host) domain.ProbeOutcome {
	return bound(ctx, c.Timeout, func(ctx context.Context) (string, error) {
		if err := c.Pinger.Ping(ctx, string(host)); err != nil {
			return "", err
		}
		return "echo reply via " + c.Pinger.Name(), nil
	})
}

// ErrNoPingBackend is returned when neither an ICMP socket nor a ping binary
// is usable on this machine.
var ErrNoPingBackend = errors.New("no ping backend available")

// NewPinger picks a ping backend for mode. "auto" prefers a native ICMP
// socket and falls back to the system ping binary; when neither works it
// returns a pinger that reports every host as unreachable, so the sweep
// still completes.
func NewPinger(mode string, logger *zap.Logger) (Pinger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case PingICMP:
		return newICMPBackend()
	case PingExec:
		return newExecBackend()
	case PingAuto, "":
		p, err := newICMPBackend()
		if err == nil {
			logger.Debug("ping_backend", zap.String("backend", p.Name()))
			return p, nil
		}
		logger.Debug("ping_icmp_unavailable", zap.Error(err))
		if p, err = newExecBackend(); err == nil {
			logger.Debug("ping_backend", zap.String("backend", p.Name()))
			return p, nil
		}
		logger.Warn("ping_backend_unavailable",
			zap.String("hint", "allow unprivileged ICMP (net.ipv4.ping_group_range) or install ping"))
		return unavailablePinger{}, nil
	default:
		return nil, fmt.Errorf("unknown ping mode %q (want auto, icmp or exec)", mode)
	}
}

func newICMPBackend() (Pinger, error) {
	if err := icmpAvailable(false); err == nil {
		return NewICMPPinger(nil, false), nil
	}
	if err := icmpAvailable(true); err != nil {
		return nil, fmt.Errorf("icmp socket: %w", err)
	}
	return NewICMPPinger(nil, true), nil
}

func newExecBackend() (Pinger, error) {
	path, err := exec.LookPath("ping")
	if err != nil {
		return nil, fmt.Errorf("ping binary: %w", err)
	}
	return NewExecPinger(path), nil
}

type unavailablePinger struct{}

func (unavailablePinger) Ping(context.Context, string) error { return ErrNoPingBackend }
func (unavailablePinger) Name() string                         { return "none" }
