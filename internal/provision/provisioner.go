package provision

import (
	"context"
	"path"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/theblitlabs/parity-provision/internal/core/config"
	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/remote"
	"github.com/theblitlabs/parity-provision/pkg/logger"
)

// Clock is the part of clock.Clock the provisioner needs.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Provisioner binds one target, its configuration and a connection. All
// task groups hang off it.
type Provisioner struct {
	target *models.Target
	cfg    *config.Config
	exec   remote.Executor
	clock  Clock
	prompt Prompter
	keyDir string
	log    zerolog.Logger
}

type Option func(*Provisioner)

func WithClock(c Clock) Option {
	return func(p *Provisioner) { p.clock = c }
}

func WithPrompter(pr Prompter) Option {
	return func(p *Provisioner) { p.prompt = pr }
}

// WithLocalKeyDir overrides where environment private keys are read from.
func WithLocalKeyDir(dir string) Option {
	return func(p *Provisioner) { p.keyDir = dir }
}

func New(target *models.Target, cfg *config.Config, exec remote.Executor, opts ...Option) *Provisioner {
	p := &Provisioner{
		target: target,
		cfg:    cfg,
		exec:   exec,
		clock:  clock.New(),
		prompt: NewTerminalPrompter(),
		log:    logger.WithComponent("provision").With().Str("env", target.Env.String()).Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provisioner) Target() *models.Target { return p.target }

func (p *Provisioner) Installer() *Installer { return &Installer{p} }
func (p *Provisioner) Services() *Services { return &Services{p} }
func (p *Provisioner) Database() *Database { return &Database{p} }
func (p *Provisioner) Broker() *Broker { return &Broker{p} }
func (p *Provisioner) Keys() *Keys { return &Keys{p} }
func (p *Provisioner) Logs() *Logs { return &Logs{p} }
func (p *Provisioner) Django() *Django { return &Django{p} }
func (p *Provisioner) Deployer() *Deployer { return &Deployer{p} }
func (p *Provisioner) CI() *CIBootstrapper { return &CIBootstrapper{p} }
func (p *Provisioner) Secrets() *SecretsStore { return &SecretsStore{p} }

// run executes cmd fail-fast.
func (p *Provisioner) run(ctx context.Context, cmd *remote.Command) error {
	_, err := p.exec.Run(ctx, cmd)
	return err
}

// try executes cmd and swallows a non-zero exit. Transport errors still
// propagate.
func (p *Provisioner) try(ctx context.Context, cmd *remote.Command) error {
	_, err := p.exec.Run(ctx, cmd)
	if err != nil && remote.IsCommandError(err) {
		p.log.Warn().Err(err).Msg("Command failed, continuing")
		return nil
	}
	return err
}

func (p *Provisioner) exists(ctx context.Context, remotePath string) (bool, error) {
	return remote.Exists(ctx, p.exec, remotePath, false)
}

func (p *Provisioner) activate() string {
	return path.Join(p.target.VirtualenvDir, "bin", "activate")
}
