package probe

import (
	"errors"
	"fmt"
	"net"
)

// Resolution failure classes, kept short enough to read in a log line.
const (
	ClassNXDomain      = "NXDOMAIN"
	ClassNoAddress     = "NO_A_RECORD"
	ClassServFail      = "SERVFAIL_or_TIMEOUT"
	ClassResolverError = "RESOLVER_ERROR"
)

var errNoAddress = errors.New("no addresses resolved")

// classifyDNS prefixes a resolver error with its failure class. The original
// error stays wrapped so timeouts are still recognised by bound.
func classifyDNS(err error) error {
	if errors.Is(err, errNoAddress) {
		return fmt.Errorf("%s: %w", ClassNoAddress, err)
	}
	var de *net.DNSError
	if errors.As(err, &de) {
		switch {
		case de.IsNotFound:
			return fmt.Errorf("%s: %w", ClassNXDomain, err)
		case de.IsTemporary || de.Timeout():
			return fmt.Errorf("%s: %w", ClassServFail, err)
		}
	}
	return fmt.Errorf("%s: %w", ClassResolverError, err)
}
