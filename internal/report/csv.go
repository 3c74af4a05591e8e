// Package report serializes sweep results.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/hostsweep/internal/domain"
)

// Header is the first CSV row.
var Header = []string{"host", "ping_status", "dns_status", "port_status"}

// DefaultOutputName returns healthcheck_<YYYYMMDD_HHMMSS>.csv for now.
func DefaultOutputName(now time.Time) string {
	return "healthcheck_" + now.Format("20060102_150405") + ".csv"
}

// WriteCSV writes the header and one row per result, in order.
func WriteCSV(w io.Writer, results []domain.HostResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			string(r.Host),
			r.Ping.ReportStatus(),
			r.DNS.ReportStatus(),
			r.Port.ReportStatus(),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// File stages a CSV in a temporary file beside its destination and only
// renames it into place once everything has been written, so a failed run
// never leaves a truncated report behind.
type File struct {
	path string
	tmp  *os.File
}

// Create opens the staging file. It fails immediately if the destination
// directory is not writable.
func Create(path string) (*File, error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	return &File{path: path, tmp: tmp}, nil
}

func (f *File) Path() string { return f.path }

// Commit writes results and moves the file to its final path.
func (f *File) Commit(results []domain.HostResult) (err error) {
	defer func() {
		if err != nil {
			err = multierr.Append(err, f.Abort())
		}
	}()

	if err := WriteCSV(f.tmp, results); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := multierr.Combine(f.tmp.Chmod(0o644), f.tmp.Sync(), f.tmp.Close()); err != nil {
		return fmt.Errorf("finish output: %w", err)
	}
	if err := os.Rename(f.tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}

// Abort discards the staging file.
func (f *File) Abort() error {
	_ = f.tmp.Close()
	if err := os.Remove(f.tmp.Name()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
