// Package dvc reads files out of dvc-tracked git repositories by shelling out
// to the dvc CLI.
package dvc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jonathan/tog-labels/internal/logger"
)

// Ref names a file inside a dvc repository.
type Ref struct {
	Repo   string
	Path   string
	Remote string
}

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// CommandError is returned when dvc exits unsuccessfully.
type CommandError struct {
	Args   []string
	Output string
	Cause  error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Output)
	if out == "" {
		return fmt.Sprintf("dvc %s: %v", strings.Join(e.Args, " "), e.Cause)
	}
	return fmt.Sprintf("dvc %s: %v: %s", strings.Join(e.Args, " "), e.Cause, out)
}

func (e *CommandError) Unwrap() error {
	return e.Cause
}

// Client fetches files with `dvc get`.
type Client struct {
	runner Runner
	binary string
	log    *logger.Logger
}

// NewClient returns a client using runner. A nil runner uses ExecRunner.
func NewClient(runner Runner, log *logger.Logger) *Client {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Client{runner: runner, binary: "dvc", log: log}
}

// Args returns the dvc arguments that download ref to out.
func Args(ref Ref, out string) []string {
	args := []string{"get", ref.Repo, ref.Path, "-o", out}
	if ref.Remote != "" {
		args = append(args, "--remote", ref.Remote)
	}
	return args
}

// Open downloads ref into a temp directory and streams it. Closing the
// reader removes the download.
func (c *Client) Open(ctx context.Context, ref Ref) (io.ReadCloser, error) {
	if ref.Repo == "" || ref.Path == "" {
		return nil, fmt.Errorf("dvc: repo and path are required")
	}
	dir, err := os.MkdirTemp("", "dvc-get-*")
	if err != nil {
		return nil, fmt.Errorf("dvc: failed to create temp dir: %w", err)
	}
	out := filepath.Join(dir, filepath.Base(ref.Path))
	args := Args(ref, out)

	c.log.WithFields(logrus.Fields{"repo": ref.Repo, "path": ref.Path, "remote": ref.Remote}).Debug("Fetching from dvc")
	if output, err := c.runner.Run(ctx, c.binary, args...); err != nil {
		_ = os.RemoveAll(dir)
		return nil, &CommandError{Args: args, Output: string(output), Cause: err}
	}

	f, err := os.Open(out)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("dvc: downloaded file missing: %w", err)
	}
	return &tempFile{File: f, dir: dir}, nil
}

type tempFile struct {
	*os.File
	dir string
}

func (t *tempFile) Close() error {
	err := t.File.Close()
	if rmErr := os.RemoveAll(t.dir); err == nil {
		err = rmErr
	}
	return err
}
