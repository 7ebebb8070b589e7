package provision

import (
	"context"

	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/remote"
)

// Services issues init-script commands. Success is the command's exit status
// and nothing more.
type Services struct {
	*Provisioner
}

func (s *Services) Control(ctx context.Context, svc models.Service, action models.Action) error {
	if _, err := models.ParseService(string(svc)); err != nil {
		return err
	}
	if _, err := models.ParseAction(string(action)); err != nil {
		return err
	}

	cmd := remote.Cmd("service", string(svc), string(action)).Sudo()
	if !svc.NeedsPTY() {
		cmd.NoPTY()
	}
	return s.run(ctx, cmd)
}

func (s *Services) Restart(ctx context.Context, svc models.Service) error {
	return s.Control(ctx, svc, models.ActionRestart)
}
