package remote

import (
	"context"
	"strings"

	"github.com/theblitlabs/parity-provision/pkg/logger"
)

// Transfer is a recorded Put or Get.
type Transfer struct {
	Local   string
	Remote  string
	UseSudo bool
}

type rule struct {
	match    string
	stdout   string
	exitCode int
}

// Recorder is an Executor that never touches a host. Every command succeeds
// with empty output unless a rule registered with On matches its Line.
// It backs --dry-run and the tests.
type Recorder struct {
	Calls     []*Command
	Uploads   []Transfer
	Downloads []Transfer

	rules []rule
	// Log prints each command as it is recorded.
	Log bool
	// Placeholders makes an unmatched echo of a single variable print
	// <NAME>, so values read from the host flow through a dry run.
	Placeholders bool
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// On makes commands whose Line contains match return stdout and exitCode.
// Rules are checked in registration order.
func (r *Recorder) On(match, stdout string, exitCode int) *Recorder {
	r.rules = append(r.rules, rule{match: match, stdout: stdout, exitCode: exitCode})
	return r
}

func (r *Recorder) Run(ctx context.Context, cmd *Command) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	r.Calls = append(r.Calls, cmd)

	if r.Log {
		log := logger.WithComponent("dry-run")
		log.Info().Str("mode", cmd.Mode().String()).Msg(cmd.Display())
	}

	res := &Result{Command: cmd.Display()}
	line := cmd.Line()
	matched := false
	for _, rl := range r.rules {
		if strings.Contains(line, rl.match) {
			res.Stdout = rl.stdout
			res.ExitCode = rl.exitCode
			matched = true
			break
		}
	}
	if !matched && r.Placeholders {
		res.Stdout = placeholder(cmd)
	}
	if res.ExitCode != 0 {
		return res, &CommandError{Command: res.Command, ExitCode: res.ExitCode, Output: res.Stdout}
	}
	return res, nil
}

func placeholder(cmd *Command) string {
	argv := cmd.Argv()
	if len(argv) != 2 || argv[0] != "echo" || !strings.HasPrefix(argv[1], "$") {
		return ""
	}
	return "<" + strings.TrimPrefix(argv[1], "$") + ">\n"
}

func (r *Recorder) Put(ctx context.Context, localPath, remotePath string, opts PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Uploads = append(r.Uploads, Transfer{Local: localPath, Remote: remotePath, UseSudo: opts.UseSudo})
	return nil
}

func (r *Recorder) Get(ctx context.Context, remotePath, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Downloads = append(r.Downloads, Transfer{Local: localPath, Remote: remotePath})
	return nil
}

func (r *Recorder) Close() error { return nil }

// Lines returns the Line of every recorded command, in order.
func (r *Recorder) Lines() []string {
	out := make([]string, len(r.Calls))
	for i, c := range r.Calls {
		out[i] = c.Line()
	}
	return out
}

// Index returns the position of the first recorded Line containing s, or -1.
func (r *Recorder) Index(s string) int {
	for i, c := range r.Calls {
		if strings.Contains(c.Line(), s) {
			return i
		}
	}
	return -1
}

// Count returns how many recorded Lines contain s.
func (r *Recorder) Count(s string) int {
	n := 0
	for _, c := range r.Calls {
		if strings.Contains(c.Line(), s) {
			n++
		}
	}
	return n
}
