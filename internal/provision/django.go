package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/kballard/go-shellquote"

	"github.com/theblitlabs/parity-provision/internal/remote"
)

var errNoProject = errors.New("this task needs an application environment (development, staging or production)")

// Django runs project management commands inside the virtualenv with the
// secrets file sourced.
type Django struct {
	*Provisioner
}

func (d *Django) inProject(cmd *remote.Command) *remote.Command {
	return cmd.In(d.target.DjangoRoot).Source(d.activate()).Source(d.target.SecretsFile)
}

// Manage builds `python manage.py <args>`.
func (d *Django) Manage(args ...string) *remote.Command {
	return d.inProject(remote.Cmd("python", append([]string{"manage.py"}, args...)...))
}

// Shell builds a configured command line, split into words.
func (d *Django) Shell(line string) (*remote.Command, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return nil, fmt.Errorf("invalid management command %q: %w", line, err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("empty management command")
	}
	return d.inProject(remote.Cmd(words[0], words[1:]...)), nil
}

func (d *Django) CreateSuperuser(ctx context.Context) error {
	if !d.target.HasProject() {
		return errNoProject
	}
	return d.run(ctx, d.Manage("createsuperuser").Interactive())
}

func (d *Django) ShellSession(ctx context.Context) error {
	if !d.target.HasProject() {
		return errNoProject
	}
	return d.run(ctx, d.Manage("shell", "--plain").Interactive())
}

// TestConnect proves the connection and credentials work.
func (p *Provisioner) TestConnect(ctx context.Context) error {
	return p.run(ctx, remote.Cmd("echo", "OK"))
}
