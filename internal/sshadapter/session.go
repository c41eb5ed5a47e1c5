// Package sshadapter is the SSH session & command adapter (C3). It wraps
// golang.org/x/crypto/ssh the way a standard OpenSSH invocation would:
// BatchMode, disabled strict host-key checking, and a short connect timeout
// (spec.md §6).
package sshadapter

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/tinkerbell/hwprovisiond/internal/provisionerrors"
)

// Credentials selects either key-file or password authentication.
type Credentials struct {
	User       string
	KeyPath    string // private key file path, preferred when set
	Password   string
	ConnectTO  time.Duration
	CommandTO  time.Duration
}

func (c Credentials) connectTimeout() time.Duration {
	if c.ConnectTO <= 0 {
		return 10 * time.Second // matches the spec's ConnectTimeout=10
	}
	return c.ConnectTO
}

func (c Credentials) commandTimeout() time.Duration {
	if c.CommandTO <= 0 {
		return 60 * time.Second
	}
	return c.CommandTO
}

func signerFromKeyfile(path string) (ssh.Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ssh.ParsePrivateKey(raw)
}

// Session is a scoped resource: acquire with Dial, always Close. It wraps
// one *ssh.Client plus the host it is bound to for error context.
type Session struct {
	host   string
	client *ssh.Client
}

// Dial acquires a session by (host, credentials), guaranteeing the caller
// can Close it on every exit path, including cancellation via the configured
// connect timeout.
func Dial(host string, port int, creds Credentials) (*Session, error) {
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	var auth []ssh.AuthMethod
	if creds.KeyPath != "" {
		signer, err := signerFromKeyfile(creds.KeyPath)
		if err != nil {
			return nil, &provisionerrors.SSHConnectionError{Host: host, Err: fmt.Errorf("loading key %s: %w", creds.KeyPath, err)}
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if creds.Password != "" {
		auth = append(auth, ssh.Password(creds.Password))
	}
	if len(auth) == 0 {
		return nil, &provisionerrors.SSHConnectionError{Host: host, Err: fmt.Errorf("no credentials supplied")}
	}

	config := &ssh.ClientConfig{
		User:            creds.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // StrictHostKeyChecking=no, per spec.md §6
		Timeout:         creds.connectTimeout(),
	}

	conn, err := net.DialTimeout("tcp", addr, creds.connectTimeout())
	if err != nil {
		return nil, &provisionerrors.SSHConnectionError{Host: host, Err: err}
	}
	// ssh.ClientConfig.Timeout only bounds ssh.Dial's own internal dial; it
	// has no effect on NewClientConn, so the handshake needs its own
	// deadline or a stalled peer can hang past connectTimeout indefinitely.
	if err := conn.SetDeadline(time.Now().Add(creds.connectTimeout())); err != nil {
		_ = conn.Close()
		return nil, &provisionerrors.SSHConnectionError{Host: host, Err: err}
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		_ = conn.Close()
		return nil, &provisionerrors.SSHConnectionError{Host: host, Err: err}
	}
	if err := conn.SetDeadline(time.Time{}); err != nil {
		_ = sshConn.Close()
		return nil, &provisionerrors.SSHConnectionError{Host: host, Err: err}
	}

	client := ssh.NewClient(sshConn, chans, reqs)
	return &Session{host: host, client: client}, nil
}

// Close releases the underlying connection. Safe to call multiple times.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// CommandResult is returned by one-shot and batch command execution.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Elapsed  time.Duration
}

// Run executes one command, BatchMode-style (no PTY, no interactive
// prompts), and returns (stdout, stderr, exit-code, elapsed) per spec.md
// §4.3.
func (s *Session) Run(cmd string) (CommandResult, error) {
	start := time.Now()
	sess, err := s.client.NewSession()
	if err != nil {
		return CommandResult{}, &provisionerrors.SSHConnectionError{Host: s.host, Err: err}
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	runErr := sess.Run(cmd)
	elapsed := time.Since(start)

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*ssh.ExitError); ok {
			exitCode = exitErr.ExitStatus()
		} else {
			return CommandResult{Stdout: stdout.String(), Stderr: stderr.String(), Elapsed: elapsed},
				&provisionerrors.SSHConnectionError{Host: s.host, Err: runErr}
		}
	}

	return CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode,
		Elapsed:  elapsed,
	}, nil
}

// RunBatch executes commands in order, optionally stopping at the first
// failure.
func (s *Session) RunBatch(cmds []string, stopOnError bool) ([]CommandResult, error) {
	results := make([]CommandResult, 0, len(cmds))
	for _, cmd := range cmds {
		res, err := s.Run(cmd)
		results = append(results, res)
		if err != nil {
			return results, err
		}
		if stopOnError && res.ExitCode != 0 {
			return results, fmt.Errorf("command %q exited %d: %s", cmd, res.ExitCode, res.Stderr)
		}
	}
	return results, nil
}

// WaitFor polls cmd until its stdout contains substr or timeout
// elapses, per spec.md §4.3's conditional-wait helper.
func (s *Session) WaitFor(cmd, substr string, interval, timeout time.Duration) (CommandResult, error) {
	deadline := time.Now().Add(timeout)
	var last CommandResult
	for {
		res, err := s.Run(cmd)
		last = res
		if err == nil && bytesContains(res.Stdout, substr) {
			return res, nil
		}
		if time.Now().After(deadline) {
			return last, fmt.Errorf("condition %q not met within %s", substr, timeout)
		}
		time.Sleep(interval)
	}
}

func bytesContains(haystack, needle string) bool {
	return bytes.Contains([]byte(haystack), []byte(needle))
}
