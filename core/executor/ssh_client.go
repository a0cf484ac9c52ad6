package executor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"command-center/core/credentials"
	"command-center/core/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// Phase errors. Every error returned by Execute matches exactly one of them.
var (
	ErrConnect        = errors.New("ssh connect failed")
	ErrConnectTimeout = fmt.Errorf("%w: timeout", ErrConnect)
	ErrHandshake      = errors.New("ssh handshake failed")
	ErrAuth           = errors.New("ssh authentication failed")
	ErrChannel        = errors.New("ssh channel failed")
	ErrCredential     = errors.New("ssh credential unavailable")
)

// Target names the remote account a command runs as
type Target struct {
	Host string
	Port int
	User string
}

func (t Target) addr() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Result is the outcome of one remote command
type Result struct {
	ExitCode int
	Output   string
}

// Options configures an SSHClient
type Options struct {
	// KeyDir holds materialized keys during a call; empty means os.TempDir.
	KeyDir         string
	ConnectTimeout time.Duration
	// KnownHostsFile enables host key verification when set.
	KnownHostsFile string
	Logger         *logrus.Logger
}

// SSHClient runs single commands on remote hosts
type SSHClient struct {
	keyDir          string
	connectTimeout  time.Duration
	hostKeyCallback ssh.HostKeyCallback
	logger          *logrus.Logger
}

// NewSSHClient creates a new SSH client
func NewSSHClient(opts Options) (*SSHClient, error) {
	callback := ssh.InsecureIgnoreHostKey()
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		callback = cb
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &SSHClient{
		keyDir:          opts.KeyDir,
		connectTimeout:  timeout,
		hostKeyCallback: callback,
		logger:          logger,
	}, nil
}

// Execute runs command on target, authenticating with keys. The private key
// is on disk only while the call is in progress.
func (sc *SSHClient) Execute(
	ctx context.Context,
	target Target,
	keys *models.SshKeypair,
	command string,
) (*Result, error) {
	keyFile, err := credentials.Materialize(sc.keyDir, keys.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredential, err)
	}
	release := func() {
		if err := keyFile.Release(); err != nil {
			sc.logger.WithError(err).Warn("Failed to release ephemeral key file")
		}
	}
	defer release()

	signer, err := keyFile.Signer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCredential, err)
	}

	client, err := sc.dial(ctx, target, signer)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	// authenticated; the file has served its purpose
	release()

	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrChannel, target.addr(), err)
	}
	defer session.Close()

	sc.logger.WithFields(logrus.Fields{"host": target.Host, "port": target.Port}).Debug("Executing remote command")

	output, err := session.CombinedOutput(command)
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return &Result{ExitCode: exitErr.ExitStatus(), Output: string(output)}, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrChannel, target.addr(), ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrChannel, target.addr(), err)
	}

	return &Result{ExitCode: 0, Output: string(output)}, nil
}

func (sc *SSHClient) dial(ctx context.Context, target Target, signer ssh.Signer) (*ssh.Client, error) {
	addr := target.addr()

	dialer := net.Dialer{Timeout: sc.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		var netErr net.Error
		if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrConnectTimeout, addr)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, addr, err)
	}

	config := &ssh.ClientConfig{
		User:            target.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: sc.hostKeyCallback,
		Timeout:         sc.connectTimeout,
	}

	// bound the handshake; cleared once the session is established
	_ = conn.SetDeadline(time.Now().Add(sc.connectTimeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return nil, fmt.Errorf("%w: %s as %s: %v", ErrAuth, addr, target.User, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrHandshake, addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// WriteFileCommand returns a shell command that writes content plus a trailing
// newline to path byte for byte.
func WriteFileCommand(path, content string) string {
	return fmt.Sprintf("printf '%%s\\n' %s > %s", ShellQuote(content), ShellQuote(path))
}

// ShellQuote quotes s for a POSIX shell.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
