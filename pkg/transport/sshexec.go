package transport

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v3"
	"go.uber.org/zap"
)

const defaultRetryElapsed = 30 * time.Second

// SSHExec reaches the snapshot store by running commands on the remote host
// over ssh. Snapshots live under Root/<dataset>/<name>; deletion destroys the
// btrfs subvolume inside the snapshot directory, then the directory itself.
type SSHExec struct {
	// Root is the remote snapshot root directory.
	Root string

	// SSHCommand is the local ssh binary, "ssh" when empty. Extra options
	// (identity, port) belong in the user's ssh config, not here.
	SSHCommand string

	// RetryElapsed bounds the total time spent retrying one transient
	// failure with exponential backoff.
	RetryElapsed time.Duration

	// run is swapped out by tests.
	run func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

	logger *zap.Logger
}

// NewSSHExec returns an SSHExec transport rooted at root.
func NewSSHExec(root string, logger *zap.Logger) *SSHExec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSHExec{
		Root:         root,
		SSHCommand:   "ssh",
		RetryElapsed: defaultRetryElapsed,
		run:          runCommand,
		logger:       logger,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

func (t *SSHExec) listArgs(host, dataset string) []string {
	return []string{host, "ls", "-1", "--", path.Join(t.Root, dataset)}
}

func (t *SSHExec) deleteSubvolumeArgs(host, dataset, name string) []string {
	return []string{host, "btrfs", "subvolume", "delete", "--", path.Join(t.Root, dataset, name, "subvolume")}
}

func (t *SSHExec) removeDirArgs(host, dataset, name string) []string {
	return []string{host, "rm", "-rf", "--", path.Join(t.Root, dataset, name)}
}

// List runs a remote directory listing for one dataset. Listing lines are the
// snapshot directory names; names outside the schema are skipped downstream.
func (t *SSHExec) List(ctx context.Context, host, dataset string) ([]string, error) {
	stdout, stderr, err := t.runRetry(ctx, t.listArgs(host, dataset))
	if err != nil {
		return nil, fmt.Errorf("transport: listing %s:%s: %w (%s)", host, dataset, err, firstLine(stderr))
	}
	return strings.Split(strings.TrimSpace(string(stdout)), "\n"), nil
}

// Delete destroys the remote snapshot subvolume, then its wrapper directory.
// A missing subvolume still gets the directory removal: a previous run may
// have destroyed the subvolume and then failed on the rm, and the leftover
// wrapper directory would otherwise reappear in every listing.
func (t *SSHExec) Delete(ctx context.Context, host, dataset, name string) error {
	_, stderr, err := t.runRetry(ctx, t.deleteSubvolumeArgs(host, dataset, name))
	if err != nil && !isNotFoundOutput(stderr) {
		return fmt.Errorf("transport: deleting subvolume of %s:%s/%s: %w (%s)", host, dataset, name, err, firstLine(stderr))
	}
	absent := err != nil

	if _, stderr, err := t.runRetry(ctx, t.removeDirArgs(host, dataset, name)); err != nil {
		return fmt.Errorf("transport: removing %s:%s/%s: %w (%s)", host, dataset, name, err, firstLine(stderr))
	}

	if absent {
		t.logger.Debug("snapshot subvolume already absent",
			zap.String("host", host), zap.String("dataset", dataset), zap.String("snapshot", name))
		return ErrSnapshotNotFound
	}
	return nil
}

// runRetry executes one ssh command, retrying transient failures with
// exponential backoff. "not found" outcomes and context cancellation are
// permanent.
func (t *SSHExec) runRetry(ctx context.Context, args []string) (stdout, stderr []byte, err error) {
	sshCmd := t.SSHCommand
	if sshCmd == "" {
		sshCmd = "ssh"
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = t.RetryElapsed

	op := func() error {
		stdout, stderr, err = t.run(ctx, sshCmd, args...)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		if isNotFoundOutput(stderr) {
			return backoff.Permanent(err)
		}
		t.logger.Debug("remote command failed, backing off",
			zap.Strings("args", args), zap.Error(err))
		return err
	}
	err = backoff.Retry(op, backoff.WithContext(bo, ctx))
	return stdout, stderr, err
}

func isNotFoundOutput(stderr []byte) bool {
	return bytes.Contains(stderr, []byte("No such file or directory"))
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}
