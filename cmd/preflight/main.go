// Command preflight checks that this machine can run sweeps: a ping
// backend is usable, the log directory is writable and the configuration
// from the environment validates.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hamed0406/hostsweep/internal/config"
	"github.com/hamed0406/hostsweep/internal/probe"
)

func main() {
	os.Exit(preflight(config.FromEnv(), os.Stdout, os.Stderr))
}

func preflight(cfg config.Config, stdout, stderr io.Writer) int {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(stdout, "✔", msg) }

	if err := cfg.Validate(); err != nil {
		fail("config: " + err.Error())
	} else {
		ok(fmt.Sprintf("config valid (port=%d timeout=%s concurrency=%d encoding=%s)",
			cfg.Port, cfg.Timeout, cfg.Concurrency, cfg.Encoding))
	}

	p, err := probe.NewPinger(cfg.PingMode, zap.NewNop())
	switch {
	case err != nil:
		fail("ping: " + err.Error())
	case p.Name() == "none":
		warn("no ping backend: every ping_status will be FAIL (allow unprivileged ICMP or install ping)")
	default:
		ok("ping backend: " + p.Name())
	}

	if cfg.LogDir == "" {
		warn("LOG_DIR empty; file logging disabled")
	} else if err := checkWritable(cfg.LogDir); err != nil {
		fail("log dir: " + err.Error())
	} else {
		ok("log dir writable: " + cfg.LogDir)
	}

	if len(cfg.PublicAPIKeys)+len(cfg.AdminAPIKeys) == 0 {
		warn("no API keys set; POST /api/sweeps is open to anyone who can reach " + cfg.Addr)
	}

	if failed {
		return 1
	}
	ok("preflight passed")
	return 0
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}
