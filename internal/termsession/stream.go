package termsession

import (
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// PTYSize holds the terminal dimensions requested by the client.
type PTYSize struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// MaxPTYCols and MaxPTYRows bound resize requests. Values beyond these are
// clamped.
const (
	MaxPTYCols uint16 = 500
	MaxPTYRows uint16 = 500
)

// MaxInputMessageSize is the maximum size in bytes for a single terminal
// input message. Larger messages are dropped by the transport layer.
const MaxInputMessageSize = 64 * 1024

// Clamp returns the size with out-of-range dimensions replaced: zeroes get
// the 80x24 default, oversized values are capped.
func (s PTYSize) Clamp() PTYSize {
	if s.Cols == 0 {
		s.Cols = 80
	}
	if s.Rows == 0 {
		s.Rows = 24
	}
	if s.Cols > MaxPTYCols {
		s.Cols = MaxPTYCols
	}
	if s.Rows > MaxPTYRows {
		s.Rows = MaxPTYRows
	}
	return s
}

// Stream is the remote shell channel a session talks to. Production streams
// wrap an ssh.Session; tests substitute fakes.
type Stream interface {
	io.Writer
	// Output is the remote stdout/stderr combined reader. Read returns an
	// error once the remote side ends.
	Output() io.Reader
	// Resize changes the remote PTY dimensions.
	Resize(cols, rows uint16) error
	// Close tears the channel down. Idempotent at the SSH layer.
	Close() error
}

// StreamOpener opens a remote shell stream on an SSH client. The manager
// uses openShellStream unless a test substitutes a fake through
// [Manager.SetStreamOpener].
type StreamOpener func(client *ssh.Client, size PTYSize) (Stream, error)

// shellStream wraps an SSH session with a PTY running the remote user's
// login shell.
type shellStream struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (ss *shellStream) Write(p []byte) (int, error) { return ss.stdin.Write(p) }

func (ss *shellStream) Output() io.Reader { return ss.stdout }

func (ss *shellStream) Resize(cols, rows uint16) error {
	return ss.session.WindowChange(int(rows), int(cols))
}

func (ss *shellStream) Close() error { return ss.session.Close() }

// openShellStream opens a new SSH session with a PTY sized to the client and
// starts the remote shell. Stderr is merged into the stdout pipe so the
// client sees a single byte stream, matching terminal semantics.
func openShellStream(client *ssh.Client, size PTYSize) (Stream, error) {
	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("create ssh session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}

	size = size.Clamp()
	if err := session.RequestPty("xterm-256color", int(size.Rows), int(size.Cols), modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	// With a PTY allocated the remote merges stderr into the terminal
	// stream, so the stdout pipe carries everything the client should see.
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	return &shellStream{session: session, stdin: stdin, stdout: stdout}, nil
}
