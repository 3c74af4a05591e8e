package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestRun_MissingInputIsUsageError(t *testing.T) {
	code, _, stderr := runCLI(t, "--log-dir", "")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "--input is required")
}

func TestRun_InvalidFlagValues(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "hosts.txt", "a.test\n")

	code, _, stderr := runCLI(t, "-i", in, "-p", "70000", "-t", "0", "--log-dir", "")
	assert.Equal(t, exitUsage, code)
	assert.Contains(t, stderr, "port 70000")
	assert.Contains(t, stderr, "timeout")
}

func TestRun_UnreadableInputIsFatal(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.csv")

	code, _, stderr := runCLI(t, "-i", filepath.Join(dir, "missing.txt"), "-o", out, "--log-dir", "")
	assert.Equal(t, exitFatal, code)
	assert.Contains(t, stderr, "open input")
	assert.NoFileExists(t, out)
}

func TestRun_UnwritableOutputIsFatal(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "hosts.txt", "a.test\n")

	code, _, _ := runCLI(t, "-i", in, "-o", filepath.Join(dir, "no", "such", "dir", "out.csv"), "--log-dir", "")
	assert.Equal(t, exitFatal, code)
}

func TestRun_EmptyInputWritesHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "hosts.txt", "\n   \n")
	out := filepath.Join(dir, "out.csv")

	code, stdout, _ := runCLI(t, "--input", in, "--output", out, "--log-dir", "")
	require.Equal(t, exitOK, code)
	assert.Contains(t, stdout, "Results exported to: "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "host,ping_status,dns_status,port_status\n", string(data))
}

func TestRun_SweepsLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port

	dir := t.TempDir()
	in := writeFile(t, dir, "hosts.txt", "127.0.0.1\n\n127.0.0.1\n")
	out := filepath.Join(dir, "out.csv")
	logDir := filepath.Join(dir, "logs")

	start := time.Now()
	code, stdout, _ := runCLI(t, "-i", in, "-o", out, "-p", strconv.Itoa(port), "-t", "1", "--log-dir", logDir)
	require.Equal(t, exitOK, code)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, stdout, "2 hosts")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, line := range lines[1:] {
		cols := strings.Split(line, ",")
		require.Len(t, cols, 4)
		assert.Equal(t, "127.0.0.1", cols[0])
		assert.Contains(t, []string{"OK", "FAIL"}, cols[1])
		assert.Equal(t, "OK", cols[2])
		assert.Equal(t, "OK", cols[3])
	}
	assert.FileExists(t, filepath.Join(logDir, "healthcheck.log"))
}

func TestRun_InterruptedSweepExitsNonZero(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "hosts.txt", "127.0.0.1\n127.0.0.2\n")
	out := filepath.Join(dir, "out.csv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"-i", in, "-o", out, "-p", "1", "--log-dir", ""}, &stdout, &stderr)

	assert.Equal(t, exitInterrupted, code)
	assert.Contains(t, stderr.String(), "interrupted")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "\n"), "partial report still has one row per host")
}

func TestResolveConfig_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "hc.yaml", "port: 443\ntimeout: 5s\nconcurrency: 4\n")

	o, err := parseFlags([]string{"-i", "x", "--config", cfgPath, "-t", "0.5"}, &bytes.Buffer{})
	require.NoError(t, err)
	cfg, err := resolveConfig(o)
	require.NoError(t, err)

	assert.Equal(t, 443, cfg.Port)
	assert.Equal(t, 500*time.Millisecond, cfg.Timeout)
	assert.Equal(t, 4, cfg.Concurrency)
}

func TestParseFlags_ShortAndLongShareValues(t *testing.T) {
	o, err := parseFlags([]string{"-i", "in.txt", "--port", "22", "-e", "latin1", "-v"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "in.txt", o.input)
	assert.Equal(t, 22, o.port)
	assert.Equal(t, "latin1", o.encoding)
	assert.True(t, o.verbose)
	assert.True(t, o.set["input"])
	assert.True(t, o.set["encoding"])
	assert.False(t, o.set["timeout"])
}
