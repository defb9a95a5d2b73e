// Package sshexec runs bootstrap scripts on remote nodes over SSH
// using the system ssh client, the way the teacher's os/exec-based
// command helpers invoke external binaries rather than embedding a
// protocol implementation for every external tool (spec.md §4.D).
package sshexec

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
)

// Executor runs a shell script on a remote host. Production code uses
// *SSHExecutor; tests substitute a fake.
type Executor interface {
	RunScript(ctx context.Context, host, script string) (stdout, stderr string, err error)
}

// SSHExecutor shells out to the system ssh binary with an ephemeral
// private key file, matching spec.md §4.D: "the private key never
// touches disk outside a scoped temp file, destroyed on return."
type SSHExecutor struct {
	User       string
	PrivateKey string
	Timeout    time.Duration
}

// NewSSHExecutor validates privateKey as a parseable key before
// returning, so a malformed key fails when the executor is built
// rather than on the first remote call.
func NewSSHExecutor(user, privateKey string) (*SSHExecutor, error) {
	if _, err := ssh.ParsePrivateKey([]byte(privateKey)); err != nil {
		return nil, fmt.Errorf("invalid SSH private key: %w", err)
	}
	return &SSHExecutor{User: user, PrivateKey: privateKey, Timeout: 10 * time.Minute}, nil
}

// RunScript writes the private key to a 0600 temp file for the
// duration of one ssh invocation, base64-encodes the script to avoid
// quoting pitfalls over the wire, and removes the key file before
// returning.
func (e *SSHExecutor) RunScript(ctx context.Context, host, script string) (string, string, error) {
	keyPath, cleanup, err := writeEphemeralKey(e.PrivateKey)
	if err != nil {
		return "", "", err
	}
	defer cleanup()

	encoded := base64.StdEncoding.EncodeToString([]byte(script))
	remoteCmd := fmt.Sprintf("echo %s | base64 -d | bash -s", encoded)

	runCtx := ctx
	var cancel context.CancelFunc
	if e.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	args := []string{
		"-i", keyPath,
		"-o", "StrictHostKeyChecking=no",
		"-o", "UserKnownHostsFile=/dev/null",
		"-o", "ConnectTimeout=10",
		fmt.Sprintf("%s@%s", e.User, host),
		remoteCmd,
	}

	cmd := exec.CommandContext(runCtx, "ssh", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.String(), stderr.String(), fmt.Errorf("ssh %s@%s failed: %w: %s", e.User, host, err, stderr.String())
	}
	return stdout.String(), stderr.String(), nil
}

func writeEphemeralKey(privateKey string) (path string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "sshexec-")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir for SSH key: %w", err)
	}
	keyPath := filepath.Join(dir, "id")
	if err := os.WriteFile(keyPath, []byte(privateKey), 0o600); err != nil {
		os.RemoveAll(dir)
		return "", nil, fmt.Errorf("failed to write ephemeral SSH key: %w", err)
	}
	return keyPath, func() { os.RemoveAll(dir) }, nil
}
