package provision

import (
	"context"
	"errors"

	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/remote"
)

type BrokerCredentials struct {
	User     string
	Password string
	VHost    string
}

// Broker provisions RabbitMQ users and virtual hosts.
type Broker struct {
	*Provisioner
}

// Setup creates the user and vhost and grants full permissions, tolerating
// each step, then restarts the broker.
func (b *Broker) Setup(ctx context.Context, creds BrokerCredentials) error {
	if creds.User == "" || creds.Password == "" || creds.VHost == "" {
		return errors.New("broker user, password and vhost are all required")
	}

	cmds := []*remote.Command{
		remote.Cmd("rabbitmqctl", "add_user", creds.User, creds.Password).Sudo().Secret(),
		remote.Cmd("rabbitmqctl", "add_vhost", creds.VHost).Sudo(),
		remote.Cmd("rabbitmqctl", "set_permissions", "-p", creds.VHost, creds.User, ".*", ".*", ".*").Sudo(),
	}
	for _, cmd := range cmds {
		if err := b.try(ctx, cmd); err != nil {
			return err
		}
	}
	return b.Services().Restart(ctx, models.ServiceRabbitMQ)
}

func (b *Broker) FromSecrets(ctx context.Context) error {
	v, err := b.Secrets().Read(ctx, "BROKER_USER", "BROKER_PASSWORD", "BROKER_VHOST")
	if err != nil {
		return err
	}
	return b.Setup(ctx, BrokerCredentials{User: v["BROKER_USER"], Password: v["BROKER_PASSWORD"], VHost: v["BROKER_VHOST"]})
}
