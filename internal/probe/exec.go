package probe

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// defaultExecWait is passed to ping when the context carries no deadline.
const defaultExecWait = 2 * time.Second

// ExecPinger shells out to the system ping utility.
type ExecPinger struct {
	Binary string
	GOOS   string
}

func NewExecPinger(binary string) *ExecPinger {
	if binary == "" {
		binary = "ping"
	}
	return &ExecPinger{Binary: binary, GOOS: runtime.GOOS}
}

func (p *ExecPinger) Name() string { return "exec" }

func (p *ExecPinger) Ping(ctx context.Context, host string) error {
	if host == "" || strings.HasPrefix(host, "-") {
		return fmt.Errorf("invalid host %q", host)
	}
	wait := defaultExecWait
	if dl, ok := ctx.Deadline(); ok {
		wait = time.Until(dl)
	}
	if wait <= 0 {
		return context.DeadlineExceeded
	}

	cmd := exec.CommandContext(ctx, p.Binary, p.args(host, wait)...)
	cmd.WaitDelay = 100 * time.Millisecond
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return fmt.Errorf("ping exited with status %d", ee.ExitCode())
	}
	return fmt.Errorf("run ping: %w", err)
}

// args builds a single-echo command line whose own wait matches the deadline.
func (p *ExecPinger) args(host string, wait time.Duration) []string {
	switch p.GOOS {
	case "windows":
		ms := wait.Milliseconds()
		if ms < 1 {
			ms = 1
		}
		return []string{"-n", "1", "-w", strconv.FormatInt(ms, 10), host}
	case "darwin", "freebsd", "netbsd", "openbsd", "dragonfly":
		return []string{"-c", "1", "-t", waitSeconds(wait), host}
	default:
		return []string{"-c", "1", "-W", waitSeconds(wait), host}
	}
}

// waitSeconds rounds up to whole seconds; ping rejects zero.
func waitSeconds(d time.Duration) string {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}
