package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Result is the outcome of one remote command. Command is the Display form.
type Result struct {
	Command  string
	Stdout   string
	ExitCode int
}

// OK reports a zero exit status.
func (r *Result) OK() bool { return r.ExitCode == 0 }

// CommandError is returned when a command exits non-zero. Command is the
// Display form, so a Secret command's arguments never reach the message.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("command failed: %s (exit %d)", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("command failed: %s (exit %d)\nOutput: %s", e.Command, e.ExitCode, strings.TrimSpace(e.Output))
}

// IsCommandError reports whether err is a non-zero exit rather than a
// transport failure.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}

// PutOptions controls an upload.
type PutOptions struct {
	// UseSudo stages the file in /tmp and moves it into place as root.
	UseSudo bool
}

// Executor runs commands and moves files on one remote host.
type Executor interface {
	Run(ctx context.Context, cmd *Command) (*Result, error)
	Put(ctx context.Context, localPath, remotePath string, opts PutOptions) error
	Get(ctx context.Context, remotePath, localPath string) error
	Close() error
}

// Exists tests for a remote path.
func Exists(ctx context.Context, ex Executor, path string, useSudo bool) (bool, error) {
	cmd := Cmd("test", "-e", path)
	if useSudo {
		cmd.Sudo()
	}
	return probe(ctx, ex, cmd)
}

// Contains reports whether a remote file contains text.
func Contains(ctx context.Context, ex Executor, path, text string, useSudo bool) (bool, error) {
	cmd := Cmd("grep", "-q", "-F", "--", text, path)
	if useSudo {
		cmd.Sudo()
	}
	return probe(ctx, ex, cmd)
}

func probe(ctx context.Context, ex Executor, cmd *Command) (bool, error) {
	_, err := ex.Run(ctx, cmd.Quiet())
	if err == nil {
		return true, nil
	}
	if IsCommandError(err) {
		return false, nil
	}
	return false, err
}

// Output runs cmd quietly and returns its trimmed standard output.
func Output(ctx context.Context, ex Executor, cmd *Command) (string, error) {
	res, err := ex.Run(ctx, cmd.Quiet())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}
