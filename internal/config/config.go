package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/hamed0406/hostsweep/internal/hosts"
	"github.com/hamed0406/hostsweep/internal/probe"
	"github.com/hamed0406/hostsweep/internal/sweep"
)

type Config struct {
	// Sweep
	Port        int           // TCP port probed on every host
	Timeout     time.Duration // per-probe timeout
	Concurrency int           // max hosts probed at once
	Encoding    string        // input file encoding
	PingMode    string        // auto | icmp | exec

	// Logging
	LogDir string // rotating log file directory; empty disables the file
	Debug  bool

	// API
	Addr           string // API bind address
	PublicAPIKeys  []string
	AdminAPIKeys   []string
	PublicRPM      int // per-caller requests per minute on /api, 0 disables
	PublicBurst    int
	AllowedOrigins []string
	MaxSweepHosts  int // largest host list accepted by POST /api/sweeps
}

func Default() Config {
	return Config{
		Port:          80,
		Timeout:       2 * time.Second,
		Concurrency:   sweep.DefaultConcurrency,
		Encoding:      hosts.DefaultEncoding,
		PingMode:      probe.PingAuto,
		LogDir:        "logs",
		Addr:          "127.0.0.1:8080",
		PublicRPM:     60,
		PublicBurst:   10,
		MaxSweepHosts: 1024,
	}
}

// FromEnv returns Default overridden by environment variables. Malformed
// numbers are ignored and the default kept.
func FromEnv() Config {
	c := Default()

	if n, ok := envInt("HEALTHCHECK_PORT"); ok {
		c.Port = n
	}
	if ms, ok := envInt("HEALTHCHECK_TIMEOUT_MS"); ok && ms > 0 {
		c.Timeout = time.Duration(ms) * time.Millisecond
	}
	if n, ok := envInt("HEALTHCHECK_CONCURRENCY"); ok && n > 0 {
		c.Concurrency = n
	}
	if v := os.Getenv("HEALTHCHECK_ENCODING"); v != "" {
		c.Encoding = v
	}
	if v := os.Getenv("HEALTHCHECK_PING_MODE"); v != "" {
		c.PingMode = v
	}

	if v, ok := os.LookupEnv("LOG_DIR"); ok {
		c.LogDir = v
	}
	c.Debug = strings.EqualFold(os.Getenv("LOG_LEVEL"), "debug")
	if v := os.Getenv("API_ADDR"); v != "" {
		c.Addr = v
	}
	c.PublicAPIKeys = splitList(os.Getenv("PUBLIC_API_KEYS"))
	c.AdminAPIKeys = splitList(os.Getenv("ADMIN_API_KEYS"))
	if n, ok := envInt("PUBLIC_RPM"); ok && n >= 0 {
		c.PublicRPM = n
	}
	if n, ok := envInt("PUBLIC_BURST"); ok && n > 0 {
		c.PublicBurst = n
	}
	c.AllowedOrigins = splitList(os.Getenv("ALLOWED_ORIGINS"))
	if n, ok := envInt("MAX_SWEEP_HOSTS"); ok && n > 0 {
		c.MaxSweepHosts = n
	}
	return c
}

// fileConfig mirrors the YAML layout. Pointers tell "unset" from zero.
type fileConfig struct {
	Port        *int    `yaml:"port"`
	Timeout     *string `yaml:"timeout"` // Go duration, e.g. "1500ms"
	Concurrency *int    `yaml:"concurrency"`
	Encoding    *string `yaml:"encoding"`
	PingMode    *string `yaml:"ping_mode"`
	LogDir      *string `yaml:"log_dir"`
	API         struct {
		Addr           *string  `yaml:"addr"`
		PublicAPIKeys  []string `yaml:"public_api_keys"`
		AdminAPIKeys   []string `yaml:"admin_api_keys"`
		PublicRPM      *int     `yaml:"public_rpm"`
		PublicBurst    *int     `yaml:"public_burst"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		MaxSweepHosts  *int     `yaml:"max_sweep_hosts"`
	} `yaml:"api"`
}

// LoadFile overlays the YAML file at path on top of base.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return base, fmt.Errorf("parse config: %w", err)
	}

	c := base
	setInt(&c.Port, fc.Port)
	setInt(&c.Concurrency, fc.Concurrency)
	setString(&c.Encoding, fc.Encoding)
	setString(&c.PingMode, fc.PingMode)
	setString(&c.LogDir, fc.LogDir)
	if fc.Timeout != nil {
		d, err := time.ParseDuration(*fc.Timeout)
		if err != nil {
			return base, fmt.Errorf("parse config: timeout: %w", err)
		}
		c.Timeout = d
	}

	setString(&c.Addr, fc.API.Addr)
	setInt(&c.PublicRPM, fc.API.PublicRPM)
	setInt(&c.PublicBurst, fc.API.PublicBurst)
	setInt(&c.MaxSweepHosts, fc.API.MaxSweepHosts)
	if fc.API.PublicAPIKeys != nil {
		c.PublicAPIKeys = fc.API.PublicAPIKeys
	}
	if fc.API.AdminAPIKeys != nil {
		c.AdminAPIKeys = fc.API.AdminAPIKeys
	}
	if fc.API.AllowedOrigins != nil {
		c.AllowedOrigins = fc.API.AllowedOrigins
	}
	return c, nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var err error
	if c.Port < 1 || c.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("port %d out of range 1-65535", c.Port))
	}
	if c.Timeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Concurrency < 1 {
		err = multierr.Append(err, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if _, e := hosts.LookupEncoding(c.Encoding); e != nil {
		err = multierr.Append(err, e)
	}
	switch strings.ToLower(c.PingMode) {
	case probe.PingAuto, probe.PingICMP, probe.PingExec:
	default:
		err = multierr.Append(err, fmt.Errorf("unknown ping mode %q", c.PingMode))
	}
	if c.MaxSweepHosts < 1 {
		err = multierr.Append(err, errors.New("max sweep hosts must be at least 1"))
	}
	return err
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
