// Package hosts reads the host list a sweep runs against.
package hosts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/hamed0406/hostsweep/internal/domain"
)

// DefaultEncoding is used when no encoding is configured.
const DefaultEncoding = "utf-8"

var ErrUnknownEncoding = errors.New("unknown encoding")

// LookupEncoding resolves a label such as "utf-8", "latin1", "cp1252" or
// "gbk". WHATWG labels are tried first, then IANA names.
func LookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultEncoding
	}
	if e, err := htmlindex.Get(name); err == nil {
		return e, nil
	}
	if e, err := ianaindex.IANA.Encoding(name); err == nil && e != nil {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

// ReadFile reads hosts from path, decoded with the named encoding.
func ReadFile(path, enc string) ([]domain.Host, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	hs, err := Read(f, enc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return hs, nil
}

// Read returns one host per non-blank line, trimmed, in input order. A
// leading byte order mark is dropped. Undecodable UTF-8 is an error rather
// than being silently replaced.
func Read(r io.Reader, enc string) ([]domain.Host, error) {
	e, err := LookupEncoding(enc)
	if err != nil {
		return nil, err
	}
	strict := e == unicode.UTF8 || e == encoding.Nop
	if !strict {
		r = transform.NewReader(r, unicode.BOMOverride(e.NewDecoder()))
	}

	out := make([]domain.Host, 0, 64)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for n := 1; sc.Scan(); n++ {
		line := sc.Text()
		if n == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		if strict && !utf8.ValidString(line) {
			return nil, fmt.Errorf("line %d: invalid %s", n, DefaultEncoding)
		}
		if h, ok := domain.NewHost(line); ok {
			out = append(out, h)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
