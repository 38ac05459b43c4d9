package termsession

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hostdeck/hostdeck/internal/history"
	"github.com/hostdeck/hostdeck/internal/logutil"
	"github.com/hostdeck/hostdeck/internal/sshpool"
)

// acquireRetryBackoff is the pause before the single retry of a transient
// connect failure during OpenSession.
const acquireRetryBackoff = 500 * time.Millisecond

// Manager tracks every live terminal session and relays between remote
// streams and transport endpoints.
type Manager struct {
	pool    *sshpool.Pool
	history *history.Store
	opener  StreamOpener

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager over the given pool and history
// store.
func NewManager(pool *sshpool.Pool, hist *history.Store) *Manager {
	return &Manager{
		pool:     pool,
		history:  hist,
		opener:   openShellStream,
		sessions: make(map[string]*Session),
	}
}

// SetStreamOpener replaces how remote shell streams are opened. Tests use
// this to substitute fakes; call it before the first OpenSession.
func (m *Manager) SetStreamOpener(open StreamOpener) {
	m.opener = open
}

// OpenSession leases a connection for the identity, opens a remote shell
// stream sized to the client's PTY, and starts relaying. The returned
// session is live; the caller must guarantee CloseSession runs on its
// transport-disconnect path.
//
// Transient connect failures are retried once after a short backoff.
// Authentication rejections are not retried.
func (m *Manager) OpenSession(ctx context.Context, userID, hostID string, identity sshpool.HostIdentity, cred sshpool.Credential, size PTYSize, endpoint Endpoint) (*Session, error) {
	sessionID := uuid.New().String()

	lease, err := m.pool.Acquire(ctx, identity, cred)
	if err != nil && !sshpool.IsAuthFailure(err) && ctx.Err() == nil {
		select {
		case <-time.After(acquireRetryBackoff):
		case <-ctx.Done():
			return nil, &SessionError{SessionID: sessionID, Op: "acquire connection", Err: ctx.Err()}
		}
		lease, err = m.pool.Acquire(ctx, identity, cred)
	}
	if err != nil {
		return nil, &SessionError{SessionID: sessionID, Op: "acquire connection", Err: err}
	}

	s := &Session{
		ID:        sessionID,
		UserID:    userID,
		HostID:    hostID,
		Identity:  identity,
		CreatedAt: time.Now(),
		lease:     lease,
		endpoint:  endpoint,
		status:    StatusOpening,
		ptySize:   size.Clamp(),
		done:      make(chan struct{}),
	}

	stream, err := m.opener(lease.Client(), s.ptySize)
	if err != nil {
		lease.Release()
		return nil, &SessionError{SessionID: sessionID, Op: "open shell stream", Err: err}
	}
	s.stream = stream
	s.setStatus(StatusActive)

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	go m.relayOutput(s)
	go m.watchFaults(s)

	log.Printf("[termsession] session %s opened: user=%s host=%s", s.ID,
		logutil.SanitizeForLog(userID), logutil.SanitizeForLog(identity.String()))
	return s, nil
}

// GetSession returns a live session by ID, or nil.
func (m *Manager) GetSession(sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// ListSessions returns every live session, optionally filtered by user.
func (m *Manager) ListSessions(userID string) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Session
	for _, s := range m.sessions {
		if userID != "" && s.UserID != userID {
			continue
		}
		result = append(result, s)
	}
	return result
}

// SessionCount returns the number of live sessions.
func (m *Manager) SessionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// OnClientData forwards raw terminal input to the remote stream. A no-op if
// the session is unknown or already tearing down.
func (m *Manager) OnClientData(sessionID string, data []byte) {
	s := m.GetSession(sessionID)
	if s == nil || !s.accepting() {
		return
	}
	s.writeMu.Lock()
	_, err := s.stream.Write(data)
	s.writeMu.Unlock()
	if err != nil {
		m.teardown(s, StatusFailed, "remote stream write failed", err.Error())
	}
}

// OnClientResize forwards a PTY resize to the remote stream and records the
// new size. Out-of-range dimensions are clamped.
func (m *Manager) OnClientResize(sessionID string, size PTYSize) {
	s := m.GetSession(sessionID)
	if s == nil || !s.accepting() {
		return
	}
	size = size.Clamp()
	s.mu.Lock()
	s.ptySize = size
	s.mu.Unlock()
	if err := s.stream.Resize(size.Cols, size.Rows); err != nil {
		log.Printf("[termsession] session %s resize failed: %v", s.ID, err)
	}
}

// OnClientCommand records a discrete command submission in history and then
// forwards it to the remote stream with a trailing newline. The history
// write happens first so the record survives a stream that errors
// immediately after; a history failure is logged and never blocks the
// command.
func (m *Manager) OnClientCommand(sessionID, command string) {
	s := m.GetSession(sessionID)
	if s == nil || !s.accepting() {
		return
	}

	if m.history != nil {
		if err := m.history.Append(s.UserID, s.HostID, command); err != nil {
			log.Printf("[termsession] session %s history append failed: %v", s.ID, err)
		}
	}

	s.writeMu.Lock()
	_, err := s.stream.Write([]byte(command + "\n"))
	s.writeMu.Unlock()
	if err != nil {
		m.teardown(s, StatusFailed, "remote stream write failed", err.Error())
	}
}

// CloseSession ends a session. Idempotent: closing an unknown or
// already-closed session is a no-op. reason is reported to the endpoint.
func (m *Manager) CloseSession(sessionID, reason string) {
	s := m.GetSession(sessionID)
	if s == nil {
		return
	}
	m.teardown(s, StatusClosed, reason, "")
}

// CloseAll ends every live session. Used at process shutdown.
func (m *Manager) CloseAll(reason string) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	for _, s := range sessions {
		m.teardown(s, StatusClosed, reason, "")
	}
}

// relayOutput pumps remote stream output to the transport endpoint until
// either side ends, then tears the session down.
func (m *Manager) relayOutput(s *Session) {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.stream.Output().Read(buf)
		if n > 0 {
			if werr := s.endpoint.SendData(buf[:n]); werr != nil {
				m.teardown(s, StatusClosed, "transport endpoint gone", "")
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				m.teardown(s, StatusClosed, "remote stream ended", "")
			} else {
				m.teardown(s, StatusFailed, "remote stream error", err.Error())
			}
			return
		}
	}
}

// watchFaults ends the session if the shared connection under it dies. No
// silent reconnect: the user sees the failure and opens a fresh session.
func (m *Manager) watchFaults(s *Session) {
	select {
	case err := <-s.lease.Fault():
		m.teardown(s, StatusFailed, "host connection lost", err.Error())
	case <-s.done:
	}
}

// teardown is the single exit path for a session. It runs at most once no
// matter how many triggers fire, so the pool lease is released exactly once
// and the endpoint hears exactly one closed notification.
func (m *Manager) teardown(s *Session, final SessionStatus, reason, errMsg string) {
	s.closeOnce.Do(func() {
		s.setStatus(StatusClosing)

		if err := s.stream.Close(); err != nil {
			log.Printf("[termsession] session %s stream close: %v", s.ID, err)
		}
		s.lease.Release()

		now := time.Now()
		s.mu.Lock()
		s.ClosedAt = &now
		s.status = final
		s.mu.Unlock()

		if errMsg != "" {
			s.endpoint.SendError(errMsg)
		}
		s.endpoint.SendClosed(reason)

		m.mu.Lock()
		delete(m.sessions, s.ID)
		m.mu.Unlock()

		close(s.done)
		log.Printf("[termsession] session %s %s: %s", s.ID, final, reason)
	})
}
