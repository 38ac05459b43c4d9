// Package termsession manages interactive terminal sessions multiplexed over
// pooled SSH connections.
//
// Each session pairs a remote shell stream (an SSH channel with a PTY) with
// a transport endpoint (the WebSocket facing the browser). The [Manager]
// owns every session: it leases a connection from [sshpool.Pool], opens the
// shell stream sized to the client's PTY, and relays bytes and control
// events in both directions until one side ends.
//
// # Session Lifecycle
//
//  1. [Manager.OpenSession] acquires a pool lease (retrying once with a
//     short backoff on transient connect failures, never on authentication
//     rejections), opens the shell stream, and registers the session as
//     active.
//
//  2. Inbound events ([Manager.OnClientData], [Manager.OnClientResize],
//     [Manager.OnClientCommand]) are fire-and-forget. Events arriving after
//     teardown are silently dropped; late WebSocket frames are expected.
//     OnClientCommand records the command in history before forwarding it,
//     so the record survives a stream that errors right after.
//
//  3. Teardown runs exactly once per session no matter how many triggers
//     fire (explicit close, remote stream EOF, remote stream error, a
//     transport fault on the shared connection, or the WebSocket dropping):
//     the stream is closed, the pool lease is released, the endpoint is
//     notified, and the session is deregistered.
//
// Every session that OpenSession returns is matched by exactly one
// teardown, so pool leases cannot leak.
//
// # Log Prefixes
//
// All log output uses the [termsession] prefix.
package termsession
