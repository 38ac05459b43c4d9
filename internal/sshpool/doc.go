// Package sshpool maintains a pool of shared SSH connections to managed hosts.
//
// The central type is [Pool]. It owns at most one live SSH connection per
// [HostIdentity] and hands out [Lease] values to callers. Concurrent Acquire
// calls for the same identity while no connection exists are coalesced into a
// single handshake, so a burst of terminal sessions opening against the same
// host costs one TCP connection and one key exchange.
//
// # Connection Lifecycle
//
//  1. Acquire: the first caller for an identity triggers a dial. The entry is
//     in state [StateConnecting] for the duration of the handshake; every
//     caller waiting on that identity receives the same client or the same
//     error.
//
//  2. Ready: the connection is stored in the pool with a reference count.
//     Each lease holder bumps the count; [Lease.Release] drops it. Releasing
//     never closes the connection, so the next session reuses it without a
//     fresh handshake.
//
//  3. Fault: a per-connection keepalive loop sends keepalive@openssh.com
//     requests every 30 seconds. A failed request marks the connection
//     [StateError], notifies every lease holder through [Lease.Fault], and
//     removes the entry so the next Acquire starts clean. There is no silent
//     mid-session reconnect.
//
//  4. Eviction: a reaper tick (default every 60s) closes connections that
//     have had no lease holders for longer than the idle timeout (default
//     5 minutes). Connections with live leases are never evicted.
//
//  5. Shutdown: [Pool.CloseAll] stops the reaper and keepalive loops and
//     force-closes every connection regardless of reference count. It is
//     idempotent.
//
// Handshake and authentication failures are returned to the caller as
// [*ConnectError] and are never retried inside the pool; retry policy belongs
// to the caller.
//
// # Log Prefixes
//
// All log output uses the [pool] prefix.
package sshpool
