package health

import (
	"context"
	"net"
	"time"
)

// TCPChecker reports whether a TCP connection can be opened. It is the
// default probe for webhook targets, which often reject bare GET requests.
type TCPChecker struct {
	// Address is host:port
	Address string

	// Timeout bounds the dial (default: 5 seconds)
	Timeout time.Duration
}

// NewTCPChecker creates a checker for address
func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: 5 * time.Second}
}

// Check dials Address and closes the connection straight away
func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	dialer := net.Dialer{Timeout: t.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.Address)
	if err != nil {
		return finish(start, false, "dial %s: %v", t.Address, err)
	}
	_ = conn.Close()
	return finish(start, true, "%s accepts connections", t.Address)
}

// Type returns CheckTypeTCP
func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// WithTimeout sets the dial timeout
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
