package fetch

import (
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Kind categorizes a fetch failure for diagnostic logging. Categories do not
// drive retry decisions on their own; the engine consults them together with
// its retryable-status set.
type Kind int

// Failure categories.
const (
	KindOther Kind = iota
	KindTimeout
	KindDNS
	KindConnRefused
	KindHTTPStatus
)

// String returns a stable label for log fields.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindDNS:
		return "dns"
	case KindConnRefused:
		return "connection_refused"
	case KindHTTPStatus:
		return "http_status"
	default:
		return "other"
	}
}

// Error is a classified fetch failure.
type Error struct {
	Kind       Kind
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Classify wraps err in an Error with the matching Kind. HTTP status
// failures are produced directly by the engine and pass through untouched.
func Classify(url string, err error) *Error {
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	kind := KindOther
	var dnsErr *net.DNSError
	var netErr net.Error
	switch {
	case errors.As(err, &dnsErr):
		kind = KindDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = KindConnRefused
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = KindTimeout
	}
	return &Error{Kind: kind, URL: url, Err: err}
}
