package sshpool

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/hostdeck/hostdeck/internal/logutil"
)

// Credential holds the authentication material for a host. It is kept
// separate from HostIdentity so identities can be logged and used as map
// keys without ever carrying secrets.
type Credential struct {
	// PrivateKeyPath is the path to a private key file. Takes precedence
	// over Password when set.
	PrivateKeyPath string
	// Password is used for password authentication when no key is set.
	Password string
}

// DialFunc establishes an SSH connection for an identity. The pool uses
// defaultDial unless Config.Dialer substitutes another implementation
// (tests use fakes so no real SSH server is needed).
type DialFunc func(ctx context.Context, identity HostIdentity, cred Credential, timeout time.Duration) (*ssh.Client, error)

func defaultDial(ctx context.Context, identity HostIdentity, cred Credential, timeout time.Duration) (*ssh.Client, error) {
	auth, err := authMethods(cred)
	if err != nil {
		return nil, err
	}

	cfg := &ssh.ClientConfig{
		User:            identity.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         timeout,
	}

	addr := net.JoinHostPort(identity.Hostname, fmt.Sprintf("%d", identity.Port))

	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	dialer := net.Dialer{Timeout: timeout}
	netConn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", logutil.SanitizeForLog(addr), err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", logutil.SanitizeForLog(addr), err)
	}

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// authMethods builds the SSH auth methods for a credential. Key material is
// read fresh on every dial so rotated keys on disk take effect without a
// restart.
func authMethods(cred Credential) ([]ssh.AuthMethod, error) {
	if cred.PrivateKeyPath != "" {
		keyData, err := os.ReadFile(cred.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(keyData)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if cred.Password != "" {
		return []ssh.AuthMethod{ssh.Password(cred.Password)}, nil
	}
	return nil, fmt.Errorf("no credential provided")
}
