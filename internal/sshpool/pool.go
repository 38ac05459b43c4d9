package sshpool

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	"github.com/hostdeck/hostdeck/internal/logutil"
)

// keepaliveInterval is how often each pooled connection is probed for
// liveness.
const keepaliveInterval = 30 * time.Second

// acquireAttempts bounds the Acquire retry loop against the narrow window
// where a freshly handshaked connection is discarded before the caller can
// claim a lease on it.
const acquireAttempts = 3

// HostIdentity identifies a distinct remote target and credential set. Two
// Acquire calls with the same identity share one connection. The struct is
// comparable and is used directly as the pool's map key.
type HostIdentity struct {
	Hostname string `json:"hostname"`
	Port     int    `json:"port"`
	Username string `json:"username"`
}

// String renders the identity as user@host:port. Safe to log; identities
// never carry credentials.
func (id HostIdentity) String() string {
	return fmt.Sprintf("%s@%s:%d", id.Username, id.Hostname, id.Port)
}

// Config holds the pool's injected settings.
type Config struct {
	// ConnectTimeout bounds the handshake for a new connection.
	ConnectTimeout time.Duration
	// IdleTimeout is how long an unreferenced connection may sit idle
	// before the reaper evicts it.
	IdleTimeout time.Duration
	// ReapInterval is how often the reaper runs. Zero disables the
	// background reaper; EvictIdle can still be called directly.
	ReapInterval time.Duration
	// MaxConnections caps the number of distinct pooled connections.
	// Zero or negative means unlimited.
	MaxConnections int
	// Dialer performs the SSH handshake. Defaults to the real dialer; tests
	// inject fakes here.
	Dialer DialFunc
}

// DefaultConfig returns the documented defaults: 10s connect timeout,
// 5 minute idle timeout, 60s reap interval, unlimited connections.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		IdleTimeout:    5 * time.Minute,
		ReapInterval:   60 * time.Second,
	}
}

// conn is a pooled connection. Owned exclusively by the pool; sessions only
// ever see the *ssh.Client through a Lease.
type conn struct {
	identity     HostIdentity
	client       *ssh.Client
	state        ConnectionState
	connectedAt  time.Time
	lastActivity time.Time
	refCount     int
	leases       map[*Lease]struct{}
	keepCancel   context.CancelFunc
}

// Pool owns zero-or-one live SSH connection per host identity. See the
// package documentation for the lifecycle.
type Pool struct {
	cfg Config

	mu    sync.Mutex
	conns map[HostIdentity]*conn

	flight singleflight.Group
	events *eventLog

	closed     bool
	reapCancel context.CancelFunc
	reapWg     sync.WaitGroup
}

// NewPool creates a connection pool and starts its background reaper when
// cfg.ReapInterval is positive. Call CloseAll to release everything.
func NewPool(cfg Config) *Pool {
	if cfg.Dialer == nil {
		cfg.Dialer = defaultDial
	}
	p := &Pool{
		cfg:    cfg,
		conns:  make(map[HostIdentity]*conn),
		events: newEventLog(),
	}
	if cfg.ReapInterval > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		p.reapCancel = cancel
		p.reapWg.Add(1)
		go p.reapLoop(ctx)
	}
	return p
}

// Lease is a caller's temporary right to use a pooled connection, bounded by
// Acquire and Release. Holding a lease pins the connection against idle
// eviction.
type Lease struct {
	pool  *Pool
	conn  *conn
	fault chan error
	once  sync.Once
}

// Client returns the leased SSH client.
func (l *Lease) Client() *ssh.Client { return l.conn.client }

// Identity returns the identity of the leased connection.
func (l *Lease) Identity() HostIdentity { return l.conn.identity }

// Fault delivers at most one transport fault for the leased connection.
// Receiving on it means the connection died under the session; the session
// must treat itself as failed.
func (l *Lease) Fault() <-chan error { return l.fault }

// Release returns the lease to the pool. Idempotent. The connection is not
// closed; it stays in the pool for reuse until the reaper evicts it.
func (l *Lease) Release() {
	l.once.Do(func() {
		l.pool.release(l)
	})
}

// Acquire returns a lease on a ready connection for the identity, dialing
// one if none exists. Concurrent calls for the same identity while no
// connection exists are coalesced into a single handshake; every waiter gets
// the same connection or the same *ConnectError. Cancelling ctx abandons the
// wait but does not cancel a handshake shared with other callers.
func (p *Pool) Acquire(ctx context.Context, identity HostIdentity, cred Credential) (*Lease, error) {
	for attempt := 0; attempt < acquireAttempts; attempt++ {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, &ConnectError{Identity: identity, Err: ErrPoolClosed}
		}
		if c, ok := p.conns[identity]; ok && c.state == StateReady {
			c.refCount++
			c.lastActivity = time.Now()
			lease := &Lease{pool: p, conn: c, fault: make(chan error, 1)}
			c.leases[lease] = struct{}{}
			p.mu.Unlock()
			return lease, nil
		}
		p.mu.Unlock()

		// No ready connection: join (or start) the in-flight handshake for
		// this identity. The naive check-then-create would let two first-time
		// callers race into two handshakes.
		ch := p.flight.DoChan(identity.String(), func() (interface{}, error) {
			return nil, p.establish(ctx, identity, cred)
		})

		select {
		case <-ctx.Done():
			return nil, &ConnectError{Identity: identity, Err: ctx.Err()}
		case res := <-ch:
			if res.Err != nil {
				return nil, res.Err
			}
			// Loop back to claim a lease on the installed connection.
		}
	}
	return nil, &ConnectError{Identity: identity, Err: fmt.Errorf("connection lost before lease could be claimed")}
}

// establish dials a new connection for the identity and installs it in the
// pool in StateReady. Runs inside the single-flight group, so at most one
// instance per identity is active.
func (p *Pool) establish(ctx context.Context, identity HostIdentity, cred Credential) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return &ConnectError{Identity: identity, Err: ErrPoolClosed}
	}
	if _, ok := p.conns[identity]; ok {
		// A ready connection appeared between the caller's check and this
		// flight; nothing to do.
		p.mu.Unlock()
		return nil
	}
	if p.cfg.MaxConnections > 0 && len(p.conns) >= p.cfg.MaxConnections {
		p.mu.Unlock()
		return &ConnectError{Identity: identity, Err: ErrTooManyConnections}
	}
	placeholder := &conn{
		identity: identity,
		state:    StateConnecting,
		leases:   make(map[*Lease]struct{}),
	}
	p.conns[identity] = placeholder
	p.mu.Unlock()

	// The handshake must complete even if the triggering caller goes away:
	// other sessions may be waiting on this flight. Timeout still applies.
	client, err := p.cfg.Dialer(context.WithoutCancel(ctx), identity, cred, p.cfg.ConnectTimeout)

	p.mu.Lock()
	if p.conns[identity] == placeholder {
		delete(p.conns, identity)
	}
	if err != nil {
		p.mu.Unlock()
		p.events.record(identity, EventConnectFailed, err.Error())
		return &ConnectError{Identity: identity, Err: err}
	}
	if p.closed {
		p.mu.Unlock()
		if client != nil {
			client.Close()
		}
		return &ConnectError{Identity: identity, Err: ErrPoolClosed}
	}

	keepCtx, keepCancel := context.WithCancel(context.Background())
	now := time.Now()
	c := &conn{
		identity:     identity,
		client:       client,
		state:        StateReady,
		connectedAt:  now,
		lastActivity: now,
		leases:       make(map[*Lease]struct{}),
		keepCancel:   keepCancel,
	}
	p.conns[identity] = c
	p.mu.Unlock()

	if client != nil {
		go p.keepalive(keepCtx, identity, client)
	}

	p.events.record(identity, EventConnected, "handshake complete")
	return nil
}

// release drops a lease's reference. Called exactly once per lease via
// Lease.Release.
func (p *Pool) release(l *Lease) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := l.conn
	if _, ok := c.leases[l]; !ok {
		// Lease already detached by a fault or shutdown.
		return
	}
	delete(c.leases, l)
	if c.refCount > 0 {
		c.refCount--
	}
	c.lastActivity = time.Now()
}

// HandleTransportError discards a connection that reported an asynchronous
// fault. Every current lease holder is notified through its Fault channel
// and the entry is removed so the next Acquire starts a fresh handshake.
func (p *Pool) HandleTransportError(identity HostIdentity, err error) {
	p.discard(identity, nil, err)
}

// discard removes the identity's connection, notifying lease holders. When
// expect is non-nil the entry is only discarded while it still holds that
// client, so a stale fault report cannot take down a replacement connection
// dialed after the faulty one was removed.
func (p *Pool) discard(identity HostIdentity, expect *ssh.Client, err error) {
	p.mu.Lock()
	c, ok := p.conns[identity]
	if !ok || c.state != StateReady || (expect != nil && c.client != expect) {
		p.mu.Unlock()
		return
	}
	c.state = StateError
	delete(p.conns, identity)
	fault := &TransportFault{Identity: identity, Err: err}
	for lease := range c.leases {
		select {
		case lease.fault <- fault:
		default:
		}
		delete(c.leases, lease)
	}
	c.refCount = 0
	c.state = StateClosed
	p.mu.Unlock()

	if c.keepCancel != nil {
		c.keepCancel()
	}
	if c.client != nil {
		c.client.Close()
	}
	p.events.record(identity, EventFault, err.Error())
}

// EvictIdle closes connections that have no lease holders and have been idle
// for at least idleThreshold. Returns the number of evicted connections.
// Normally driven by the pool's reaper; exposed for direct invocation.
func (p *Pool) EvictIdle(idleThreshold time.Duration) int {
	cutoff := time.Now().Add(-idleThreshold)

	p.mu.Lock()
	var evicted []*conn
	for identity, c := range p.conns {
		if c.state != StateReady || c.refCount > 0 {
			continue
		}
		if c.lastActivity.After(cutoff) {
			continue
		}
		c.state = StateClosed
		delete(p.conns, identity)
		evicted = append(evicted, c)
	}
	p.mu.Unlock()

	for _, c := range evicted {
		if c.keepCancel != nil {
			c.keepCancel()
		}
		if c.client != nil {
			c.client.Close()
		}
		p.events.record(c.identity, EventEvicted, fmt.Sprintf("idle longer than %s", idleThreshold))
	}
	return len(evicted)
}

// CloseAll force-closes every connection regardless of reference count,
// stops the reaper, and marks the pool closed. Idempotent; used at process
// shutdown.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	conns := p.conns
	p.conns = make(map[HostIdentity]*conn)
	for _, c := range conns {
		c.state = StateClosed
		for lease := range c.leases {
			select {
			case lease.fault <- &TransportFault{Identity: c.identity, Err: ErrPoolClosed}:
			default:
			}
			delete(c.leases, lease)
		}
		c.refCount = 0
	}
	p.mu.Unlock()

	if p.reapCancel != nil {
		p.reapCancel()
		p.reapWg.Wait()
		p.reapCancel = nil
	}

	var firstErr error
	count := 0
	for _, c := range conns {
		if c.keepCancel != nil {
			c.keepCancel()
		}
		if c.client != nil {
			if err := c.client.Close(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("close connection to %s: %w", c.identity, err)
			}
		}
		count++
	}
	if count > 0 {
		log.Printf("[pool] closed all %d connection(s)", count)
	}
	return firstErr
}

// RefCount returns the current reference count for the identity's
// connection, or 0 if none exists.
func (p *Pool) RefCount(identity HostIdentity) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.conns[identity]; ok {
		return c.refCount
	}
	return 0
}

// ConnectionCount returns the number of pooled connections, including any
// in-flight handshakes.
func (p *Pool) ConnectionCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// ConnStatus is a point-in-time snapshot of one pooled connection.
type ConnStatus struct {
	Identity     HostIdentity    `json:"identity"`
	State        ConnectionState `json:"state"`
	RefCount     int             `json:"ref_count"`
	ConnectedAt  time.Time       `json:"connected_at"`
	LastActivity time.Time       `json:"last_activity"`
}

// Status returns a snapshot of every pooled connection.
func (p *Pool) Status() []ConnStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	result := make([]ConnStatus, 0, len(p.conns))
	for _, c := range p.conns {
		result = append(result, ConnStatus{
			Identity:     c.identity,
			State:        c.state,
			RefCount:     c.refCount,
			ConnectedAt:  c.connectedAt,
			LastActivity: c.lastActivity,
		})
	}
	return result
}

// reapLoop periodically evicts idle connections until CloseAll cancels it.
func (p *Pool) reapLoop(ctx context.Context) {
	defer p.reapWg.Done()
	ticker := time.NewTicker(p.cfg.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.EvictIdle(p.cfg.IdleTimeout); n > 0 {
				log.Printf("[pool] reaper evicted %d idle connection(s)", n)
			}
		}
	}
}

// keepalive probes the connection until it fails or its context is
// cancelled. A failed probe is treated as a transport fault.
func (p *Pool) keepalive(ctx context.Context, identity HostIdentity, client *ssh.Client) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				log.Printf("[pool] keepalive failed for %s: %v", logutil.SanitizeForLog(identity.String()), err)
				p.discard(identity, client, err)
				return
			}
		}
	}
}
