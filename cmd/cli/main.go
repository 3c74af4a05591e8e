package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/hostsweep/internal/config"
	"github.com/hamed0406/hostsweep/internal/domain"
	"github.com/hamed0406/hostsweep/internal/hosts"
	"github.com/hamed0406/hostsweep/internal/logging"
	"github.com/hamed0406/hostsweep/internal/probe"
	"github.com/hamed0406/hostsweep/internal/report"
	"github.com/hamed0406/hostsweep/internal/sweep"
)

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2

	// exitInterrupted follows the shell convention of 128+SIGINT.
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type options struct {
	input       string
	output      string
	port        int
	timeout     float64 // seconds
	encoding    string
	concurrency int
	pingMode    string
	configPath  string
	logDir      string
	verbose     bool

	set map[string]bool // long names given on the command line
}

var aliases = map[string]string{
	"i": "input", "o": "output", "p": "port", "t": "timeout",
	"e": "encoding", "c": "concurrency", "v": "verbose",
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	def := config.Default()
	o := options{set: map[string]bool{}}

	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	str := func(p *string, long, short, val, usage string) {
		fs.StringVar(p, long, val, usage)
		if short != "" {
			fs.StringVar(p, short, val, "shorthand for --"+long)
		}
	}
	str(&o.input, "input", "i", "", "file with one host per line (required)")
	str(&o.output, "output", "o", "", "CSV report path (default healthcheck_<YYYYMMDD_HHMMSS>.csv)")
	str(&o.encoding, "encoding", "e", def.Encoding, "input file encoding")
	str(&o.pingMode, "ping", "", def.PingMode, "ping backend: auto, icmp or exec")
	str(&o.configPath, "config", "", "", "YAML config file")
	str(&o.logDir, "log-dir", "", def.LogDir, "directory for the rotating log file, empty disables it")
	fs.IntVar(&o.port, "port", def.Port, "TCP port to probe")
	fs.IntVar(&o.port, "p", def.Port, "shorthand for --port")
	fs.Float64Var(&o.timeout, "timeout", def.Timeout.Seconds(), "per-probe timeout in seconds")
	fs.Float64Var(&o.timeout, "t", def.Timeout.Seconds(), "shorthand for --timeout")
	fs.IntVar(&o.concurrency, "concurrency", def.Concurrency, "hosts probed at once")
	fs.IntVar(&o.concurrency, "c", def.Concurrency, "shorthand for --concurrency")
	fs.BoolVar(&o.verbose, "verbose", false, "debug logging and per-host progress")
	fs.BoolVar(&o.verbose, "v", false, "shorthand for --verbose")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	fs.Visit(func(f *flag.Flag) {
		name := f.Name
		if long, ok := aliases[name]; ok {
			name = long
		}
		o.set[name] = true
	})
	if o.input == "" {
		return o, errors.New("--input is required")
	}
	return o, nil
}

// resolveConfig layers defaults, environment, the optional YAML file and
// finally explicit flags.
func resolveConfig(o options) (config.Config, error) {
	cfg := config.FromEnv()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(o.configPath, cfg); err != nil {
			return cfg, err
		}
	}
	if o.set["port"] {
		cfg.Port = o.port
	}
	if o.set["timeout"] {
		cfg.Timeout = time.Duration(o.timeout * float64(time.Second))
	}
	if o.set["encoding"] {
		cfg.Encoding = o.encoding
	}
	if o.set["concurrency"] {
		cfg.Concurrency = o.concurrency
	}
	if o.set["ping"] {
		cfg.PingMode = o.pingMode
	}
	if o.set["log-dir"] {
		cfg.LogDir = o.logDir
	}
	if o.verbose {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return exitUsage
	}
	cfg, err := resolveConfig(o)
	if err != nil {
		fmt.Fprintln(stderr, "config error:", err)
		return exitUsage
	}

	logger, err := logging.NewLogger(logging.Options{Dir: cfg.LogDir, Debug: cfg.Debug, Console: true})
	if err != nil {
		fmt.Fprintln(stderr, "logger init failed:", err)
		return exitFatal
	}
	defer func() { _ = logger.Sync() }()

	list, err := hosts.ReadFile(o.input, cfg.Encoding)
	if err != nil {
		logger.Error("read_input_failed", zap.String("path", o.input), zap.Error(err))
		fmt.Fprintln(stderr, "error:", err)
		return exitFatal
	}

	outPath := o.output
	if outPath == "" {
		outPath = report.DefaultOutputName(time.Now())
	}
	out, err := report.Create(outPath)
	if err != nil {
		logger.Error("create_output_failed", zap.String("path", outPath), zap.Error(err))
		fmt.Fprintln(stderr, "error:", err)
		return exitFatal
	}

	pinger, err := probe.NewPinger(cfg.PingMode, logger)
	if err != nil {
		_ = out.Abort()
		fmt.Fprintln(stderr, "error:", err)
		return exitFatal
	}

	prober := probe.New(logger, probe.Options{Port: cfg.Port, Timeout: cfg.Timeout, Pinger: pinger})
	coord := sweep.NewCoordinator(logger, prober, cfg.Concurrency)
	if o.verbose {
		coord.OnProgress = func(p sweep.Progress) {
			if p.State == domain.StateDone {
				fmt.Fprintf(stderr, "[%d/%d] %s\n", p.Done, p.Total, p.Host)
			}
		}
	}
	res := coord.Run(ctx, list)

	if err := out.Commit(res.Results); err != nil {
		logger.Error("write_output_failed", zap.String("path", outPath), zap.Error(err))
		fmt.Fprintln(stderr, "error:", err)
		return exitFatal
	}

	fmt.Fprintf(stdout, "Results exported to: %s\n", out.Path())
	fmt.Fprintf(stdout, "%d hosts: ping OK %d, dns OK %d, port %d OK %d\n",
		len(res.Results),
		res.Count(domain.ProbePing),
		res.Count(domain.ProbeDNS),
		cfg.Port, res.Count(domain.ProbePort),
	)
	if ctx.Err() != nil {
		logger.Warn("sweep_interrupted", zap.String("sweep_id", res.ID))
		fmt.Fprintln(stderr, "interrupted: hosts not probed before the signal are reported as FAIL")
		return exitInterrupted
	}
	return exitOK
}
