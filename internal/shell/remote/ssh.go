package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// =============================================================================
// SSH Configuration
// =============================================================================

// SSHConfig configures SSH executors.
type SSHConfig struct {
	User                  string        // Default user when the host has no user@ prefix
	Port                  int           // Default: 22
	KeyFile               string        // Private key file; optional when an agent is available
	Passphrase            string        // Passphrase for KeyFile, if encrypted
	KnownHostsFile        string        // Default: ~/.ssh/known_hosts
	InsecureIgnoreHostKey bool          // Skip host key verification
	UseAgent              bool          // Authenticate through SSH_AUTH_SOCK when set
	ConnectTimeout        time.Duration // Default: 10 seconds
	CommandTimeout        time.Duration // Zero means commands never time out
}

// DefaultSSHConfig returns the default configuration.
func DefaultSSHConfig() SSHConfig {
	return SSHConfig{
		Port:           22,
		KnownHostsFile: "~/.ssh/known_hosts",
		UseAgent:       true,
		ConnectTimeout: 10 * time.Second,
	}
}

// Endpoint is a parsed user@host:port address.
type Endpoint struct {
	User string
	Host string
	Port int
}

// Address returns the host:port dial address.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string {
	if e.User != "" {
		return e.User + "@" + e.Address()
	}
	return e.Address()
}

// ParseEndpoint parses "[user@]host[:port]" using defaultUser and
// defaultPort for missing parts.
func ParseEndpoint(s, defaultUser string, defaultPort int) (Endpoint, error) {
	ep := Endpoint{User: defaultUser, Port: defaultPort}
	if ep.Port == 0 {
		ep.Port = 22
	}

	if user, rest, ok := strings.Cut(s, "@"); ok {
		ep.User = user
		s = rest
	}

	host, port, err := net.SplitHostPort(s)
	if err != nil {
		// No port given.
		ep.Host = strings.Trim(s, "[]")
	} else {
		p, err := strconv.Atoi(port)
		if err != nil || p <= 0 || p > 65535 {
			return Endpoint{}, fmt.Errorf("invalid port in host %q", s)
		}
		ep.Host = host
		ep.Port = p
	}

	if ep.Host == "" {
		return Endpoint{}, fmt.Errorf("invalid host %q", s)
	}
	if ep.User == "" {
		ep.User = os.Getenv("USER")
	}
	return ep, nil
}

// =============================================================================
// SSHExecutor
// =============================================================================

// SSHExecutor implements Executor by running POSIX commands over SSH.
// The connection is opened lazily and reused for every operation.
type SSHExecutor struct {
	shellOps
	endpoint     Endpoint
	clientConfig *ssh.ClientConfig
	agentConn    net.Conn
	timeout      time.Duration
	client       *ssh.Client
	mu           sync.Mutex // Protects client
}

// NewSSHExecutor creates an executor for host ("[user@]host[:port]").
// No connection is made until the first operation.
func NewSSHExecutor(host string, config SSHConfig) (*SSHExecutor, error) {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 10 * time.Second
	}

	endpoint, err := ParseEndpoint(host, config.User, config.Port)
	if err != nil {
		return nil, err
	}

	e := &SSHExecutor{
		endpoint: endpoint,
		timeout:  config.CommandTimeout,
	}

	auth, err := e.authMethods(config)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyCallback(config)
	if err != nil {
		e.closeAgent()
		return nil, err
	}

	e.clientConfig = &ssh.ClientConfig{
		User:            endpoint.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.ConnectTimeout,
	}
	e.shellOps = shellOps{host: endpoint.Host, run: e.runLine}

	return e, nil
}

func (e *SSHExecutor) authMethods(config SSHConfig) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if config.KeyFile != "" {
		pemBytes, err := os.ReadFile(expandHome(config.KeyFile))
		if err != nil {
			return nil, fmt.Errorf("read SSH key: %w", err)
		}
		var signer ssh.Signer
		if config.Passphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(config.Passphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(pemBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("parse SSH private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); config.UseAgent && sock != "" {
		conn, err := net.Dial("unix", sock)
		if err == nil {
			e.agentConn = conn
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, errors.New("no SSH authentication method: set a key file or run an SSH agent")
	}
	return methods, nil
}

func hostKeyCallback(config SSHConfig) (ssh.HostKeyCallback, error) {
	if config.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := config.KnownHostsFile
	if file == "" {
		file = "~/.ssh/known_hosts"
	}
	callback, err := knownhosts.New(expandHome(file))
	if err != nil {
		return nil, fmt.Errorf("load known hosts: %w", err)
	}
	return callback, nil
}

// =============================================================================
// Connection Management
// =============================================================================

// connect establishes the SSH connection if not already connected.
func (e *SSHExecutor) connect(_ context.Context) (*ssh.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.client != nil {
		// Check if connection is still alive
		_, _, err := e.client.SendRequest("keepalive@releaser", true, nil)
		if err == nil {
			return e.client, nil
		}
		// Connection dead, reconnect
		e.client.Close()
		e.client = nil
	}

	client, err := ssh.Dial("tcp", e.endpoint.Address(), e.clientConfig)
	if err != nil {
		return nil, fmt.Errorf("SSH dial %s: %w: %w", e.endpoint, ErrConnectionFailed, err)
	}

	e.client = client
	return client, nil
}

// Close closes the SSH connection.
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closeAgent()
	if e.client != nil {
		err := e.client.Close()
		e.client = nil
		return err
	}
	return nil
}

func (e *SSHExecutor) closeAgent() {
	if e.agentConn != nil {
		e.agentConn.Close()
		e.agentConn = nil
	}
}

// =============================================================================
// Command Execution
// =============================================================================

// runLine runs one shell line in a new session.
func (e *SSHExecutor) runLine(ctx context.Context, line string, stdin []byte) (string, int, error) {
	client, err := e.connect(ctx)
	if err != nil {
		return "", -1, err
	}

	session, err := client.NewSession()
	if err != nil {
		return "", -1, fmt.Errorf("create SSH session: %w", err)
	}
	defer session.Close()

	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	type result struct {
		out []byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := session.CombinedOutput(line)
		done <- result{out: out, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", -1, ctx.Err()
	case r := <-done:
		var exitErr *ssh.ExitError
		if errors.As(r.err, &exitErr) {
			return string(r.out), exitErr.ExitStatus(), nil
		}
		if r.err != nil {
			return string(r.out), -1, r.err
		}
		return string(r.out), 0, nil
	}
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
