package termsession

import (
	"fmt"
	"sync"
	"time"

	"github.com/hostdeck/hostdeck/internal/sshpool"
)

// SessionStatus represents the lifecycle state of a terminal session.
type SessionStatus string

const (
	// StatusOpening means the remote stream is being established.
	StatusOpening SessionStatus = "opening"
	// StatusActive means bytes are being relayed in both directions.
	StatusActive SessionStatus = "active"
	// StatusClosing means teardown has started.
	StatusClosing SessionStatus = "closing"
	// StatusClosed means the session ended normally.
	StatusClosed SessionStatus = "closed"
	// StatusFailed means the session ended because of a stream or
	// transport error.
	StatusFailed SessionStatus = "failed"
)

// Endpoint is the transport-layer side of a session: the object through
// which remote output and lifecycle notifications reach the client. Owned
// by an external collaborator (the WebSocket handler).
type Endpoint interface {
	// SendData pushes remote terminal output to the client. An error means
	// the transport is gone and the session should end.
	SendData(data []byte) error
	// SendError surfaces a session failure to the client.
	SendError(msg string)
	// SendClosed tells the client the session ended and why.
	SendClosed(reason string)
}

// SessionError reports a failure opening or maintaining a single session's
// remote stream. It affects only that session, never the shared connection.
type SessionError struct {
	SessionID string
	Op        string
	Err       error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %s: %v", e.SessionID, e.Op, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Session is one client-facing interactive terminal. Exclusively owned by
// the Manager; it holds a lease on exactly one pooled connection for its
// lifetime.
type Session struct {
	// ID is a unique identifier for this session (UUID).
	ID string
	// UserID is the verified identity the session was opened for.
	UserID string
	// HostID is the inventory name of the target host, used as the
	// history key component.
	HostID string
	// Identity is the connection identity the session is multiplexed over.
	Identity sshpool.HostIdentity
	// CreatedAt is when the session was opened.
	CreatedAt time.Time
	// ClosedAt is when the session ended (nil while live).
	ClosedAt *time.Time

	lease    *sshpool.Lease
	stream   Stream
	endpoint Endpoint

	mu      sync.Mutex
	status  SessionStatus
	ptySize PTYSize

	// writeMu serializes client-to-remote writes so bytes reach the stream
	// in submission order.
	writeMu sync.Mutex

	closeOnce sync.Once
	done      chan struct{}
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(status SessionStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// PTYSize returns the last size the client reported.
func (s *Session) PTYSize() PTYSize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ptySize
}

// accepting reports whether the session still takes inbound client events.
// Events arriving once teardown has begun are dropped, not errors.
func (s *Session) accepting() bool {
	switch s.Status() {
	case StatusOpening, StatusActive:
		return true
	default:
		return false
	}
}

// Done is closed when the session has fully torn down.
func (s *Session) Done() <-chan struct{} { return s.done }
