package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/theblitlabs/parity-provision/internal/core/config"
	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/provision"
	"github.com/theblitlabs/parity-provision/internal/remote"
	"github.com/theblitlabs/parity-provision/internal/utils/errorutil"
	"github.com/theblitlabs/parity-provision/pkg/logger"
)

const DefaultConfigPath = "provision.yaml"

// GlobalOptions are the persistent flags shared by every command.
type GlobalOptions struct {
	ConfigPath string
	Env        string
	LogMode    string
	DryRun     bool
	AssumeYes  bool
}

var (
	Global        = GlobalOptions{ConfigPath: DefaultConfigPath, LogMode: string(logger.LogModePretty)}
	configManager = config.NewConfigManager(DefaultConfigPath)
)

var errNoEnvironment = errors.New("no environment selected, pass --env development|staging|production|ci")

// session is one connection to one target.
type session struct {
	cfg    *config.Config
	target *models.Target
	exec   remote.Executor
	prov   *provision.Provisioner
	log    zerolog.Logger
}

func loadConfig() (*config.Config, error) {
	if configManager.GetConfigPath() != Global.ConfigPath {
		configManager.SetConfigPath(Global.ConfigPath)
	}
	cfg, err := configManager.GetConfig()
	if err != nil {
		return nil, errorutil.WrapError(err, "failed to load config from %s", Global.ConfigPath)
	}
	return cfg, nil
}

func selectTarget(cfg *config.Config, env string) (*models.Target, error) {
	if env == "" {
		env = Global.Env
	}
	if env == "" {
		return nil, errNoEnvironment
	}
	envType, err := models.ParseEnvironment(env)
	if err != nil {
		return nil, err
	}
	return models.SelectTarget(envType, cfg)
}

// openSession resolves the target and connects to it. With --dry-run, or
// when offline is set, commands are only recorded and logged.
func openSession(ctx context.Context, env string, offline bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	target, err := selectTarget(cfg, env)
	if err != nil {
		return nil, err
	}

	log := logger.WithComponent("cli").With().Str("env", target.Env.String()).Logger()

	var opts []provision.Option
	var exec remote.Executor
	if Global.DryRun || offline {
		rec := remote.NewRecorder()
		rec.Log = !offline
		rec.Placeholders = true
		exec = rec
		opts = append(opts, provision.WithClock(instantClock{clock.New()}))
	} else {
		ssh, err := remote.DialSSH(ctx, remote.SSHConfig{
			Address:               target.Address(),
			User:                  target.User,
			KeyFile:               target.KeyFile,
			KnownHosts:            cfg.SSH.KnownHosts,
			InsecureIgnoreHostKey: cfg.SSH.InsecureIgnoreHostKey,
			DialTimeout:           cfg.SSH.DialTimeout,
		})
		if err != nil {
			return nil, errorutil.WrapError(err, "failed to connect to %s", target.Env)
		}
		exec = ssh
	}

	if Global.AssumeYes {
		opts = append(opts, provision.WithPrompter(provision.FixedPrompter{Answer: true}))
	}

	return &session{
		cfg:    cfg,
		target: target,
		exec:   exec,
		prov:   provision.New(target, cfg, exec, opts...),
		log:    log,
	}, nil
}

// instantClock keeps wall time but never waits. Dry runs use it.
type instantClock struct {
	clock.Clock
}

func (instantClock) Sleep(time.Duration) {}

func (s *session) Close() {
	errorutil.HandleError(s.log, s.exec.Close(), "Failed to close connection")
}

// withSession opens a session for env (or --env when empty), runs fn and
// closes the connection.
func withSession(ctx context.Context, env string, fn func(*session) error) error {
	s, err := openSession(ctx, env, false)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func describeTarget(t *models.Target) string {
	return fmt.Sprintf("%s (%s@%s)", t.Env, t.User, t.Address())
}
