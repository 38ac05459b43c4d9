package sshpool

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPoolClosed is returned by Acquire after CloseAll has run.
var ErrPoolClosed = errors.New("connection pool is closed")

// ErrTooManyConnections is returned by Acquire when the configured
// connection limit has been reached.
var ErrTooManyConnections = errors.New("maximum connections reached")

// ConnectError reports a failure to acquire a usable connection for an
// identity: dial failure, handshake failure, authentication rejection, or
// connect timeout. The pool never retries these; the caller decides.
type ConnectError struct {
	Identity HostIdentity
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Identity, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TransportFault reports an asynchronous failure of an already-established
// connection, typically detected by the keepalive loop. It is delivered to
// every lease holder of the failed connection.
type TransportFault struct {
	Identity HostIdentity
	Err      error
}

func (e *TransportFault) Error() string {
	return fmt.Sprintf("transport fault on %s: %v", e.Identity, e.Err)
}

func (e *TransportFault) Unwrap() error { return e.Err }

// IsAuthFailure reports whether err looks like an SSH authentication
// rejection. x/crypto/ssh does not export a typed error for this, so the
// check matches the stable substrings it produces.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "permission denied")
}
