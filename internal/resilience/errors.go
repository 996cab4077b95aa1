package resilience

import (
	"errors"
	"net"
	"net/textproto"
	"strings"
	"syscall"
)

// IsTransient reports whether the error is worth retrying: network timeouts,
// connection failures, and FTP transient negative completion replies (4xx).
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// jlaffaye/ftp surfaces server replies as textproto errors; the 4xx
	// range means "try again later" by protocol definition.
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) && protoErr.Code >= 400 && protoErr.Code < 500 {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	// String heuristics for errors wrapped without a typed cause.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"temporary failure in name resolution",
		"no such host",
		"i/o timeout",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
