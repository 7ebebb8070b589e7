package provision

import (
	"context"
	"path"
	"time"

	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/pipeline"
	"github.com/theblitlabs/parity-provision/internal/remote"
)

// SearchIndexSettleDelay is how long the index server gets to come up under
// supervisor before the index is rebuilt.
const SearchIndexSettleDelay = 10 * time.Second

// Deployer builds the deployment pipeline for an application environment.
type Deployer struct {
	*Provisioner
}

// Pipeline returns the deployment steps in their fixed order.
func (d *Deployer) Pipeline() (*pipeline.Pipeline, error) {
	if !d.target.HasProject() {
		return nil, errNoProject
	}

	return pipeline.New("deploy",
		pipeline.Step{Name: "additional-packages", Description: "Install configured extra OS packages", Run: d.Installer().Additional},
		pipeline.Step{Name: "fetch-source", Description: "Clone or update the project checkout", Run: d.FetchSource},
		pipeline.Step{Name: "create-virtualenv", Description: "Create the virtualenv when absent", Run: d.CreateVirtualenv},
		pipeline.Step{Name: "install-requirements", Description: "Install the environment's Python requirements", Run: d.InstallRequirements},
		pipeline.Step{Name: "manage", Description: "syncdb, migrate, collectstatic and extra management commands", Run: d.PrepareProject},
		pipeline.Step{Name: "log-directory", Description: "Create the project log directory", Run: d.PrepareLogDirectory},
		pipeline.Step{Name: "supervisor", Description: "Install the supervisor program and restart it", Run: d.SetupSupervisor},
		pipeline.Step{Name: "memcached", Description: "Install the memcached config and restart it", Run: d.SetupMemcached},
		pipeline.Step{Name: "nginx", Description: "Install and enable the nginx site and restart it", Run: d.SetupNginx},
	), nil
}

// FetchSource clones the repository when the project root is missing.
// Otherwise development and staging track the branch named after the
// environment, tolerating failures; production pulls its current branch.
func (d *Deployer) FetchSource(ctx context.Context) error {
	root := d.target.ProjectRoot
	exists, err := d.exists(ctx, root)
	if err != nil {
		return err
	}
	if !exists {
		return d.run(ctx, remote.Cmd("git", "clone", d.target.Repository, root).In(d.target.Home))
	}

	switch d.target.Env {
	case models.EnvironmentDevelopment, models.EnvironmentStaging:
		branch := d.target.Env.String()
		if err := d.try(ctx, remote.Cmd("git", "checkout", "-b", branch).In(root)); err != nil {
			return err
		}
		return d.try(ctx, remote.Cmd("git", "pull", "origin", branch).In(root))
	default:
		return d.run(ctx, remote.Cmd("git", "pull").In(root))
	}
}

func (d *Deployer) CreateVirtualenv(ctx context.Context) error {
	exists, err := d.exists(ctx, d.target.VirtualenvDir)
	if err != nil || exists {
		return err
	}
	mk := remote.Cmd("mkvirtualenv", "--no-site-packages", "--distribute", d.target.Virtualenv).
		Source("/usr/local/bin/virtualenvwrapper.sh")
	return d.run(ctx, mk)
}

func (d *Deployer) InstallRequirements(ctx context.Context) error {
	requirements := path.Join("requirements", d.target.Env.String()+".txt")
	cmd := remote.Cmd("pip", "install", "-r", requirements).
		In(d.target.ProjectRoot).
		Source(d.activate())
	return d.run(ctx, cmd)
}

// PrepareProject runs the fixed management commands, then the configured ones.
func (d *Deployer) PrepareProject(ctx context.Context) error {
	dj := d.Django()
	cmds := []*remote.Command{
		dj.Manage("syncdb", "--noinput"),
		dj.Manage("migrate", "--noinput"),
		dj.Manage("collectstatic", "--noinput"),
	}
	for _, line := range d.cfg.ManagementCommands {
		cmd, err := dj.Shell(line)
		if err != nil {
			return err
		}
		cmds = append(cmds, cmd)
	}

	for _, cmd := range cmds {
		if err := d.run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

func (d *Deployer) PrepareLogDirectory(ctx context.Context) error {
	return d.run(ctx, remote.Cmd("mkdir", "-p", path.Join("/var/log", d.target.Project)).Sudo())
}

// installConfig copies tools/<service>/<file> from the checkout into dest.
func (d *Deployer) installConfig(ctx context.Context, service, file, dest string) error {
	src := path.Join("tools", service, file)
	return d.run(ctx, remote.Cmd("cp", src, dest).In(d.target.ProjectRoot).Sudo())
}

// SetupSupervisor reinstalls the supervisor program config. With the search
// index enabled it also refreshes the index server config and, once the
// server has had time to start, rebuilds the index.
func (d *Deployer) SetupSupervisor(ctx context.Context) error {
	env := d.target.Env.String()
	svc := d.Services()

	if err := svc.Control(ctx, models.ServiceSupervisor, models.ActionStop); err != nil {
		return err
	}
	dest := path.Join("/etc/supervisor/conf.d", d.target.Project+".conf")
	if err := d.installConfig(ctx, "supervisor", env+".conf", dest); err != nil {
		return err
	}

	indexing := d.target.SearchIndexDir != ""
	if indexing {
		indexConf := path.Join(d.target.SearchIndexDir, "config", "elasticsearch.yml")
		if err := d.installConfig(ctx, "elasticsearch", env+".yml", indexConf); err != nil {
			return err
		}
	}

	if err := svc.Control(ctx, models.ServiceSupervisor, models.ActionStart); err != nil {
		return err
	}
	if !indexing {
		return nil
	}

	d.log.Info().Dur("delay", SearchIndexSettleDelay).Msg("Waiting for search index to start")
	d.clock.Sleep(SearchIndexSettleDelay)
	return d.run(ctx, d.Django().Manage("rebuild_index", "--noinput"))
}

func (d *Deployer) SetupMemcached(ctx context.Context) error {
	if err := d.installConfig(ctx, "memcached", d.target.Env.String()+".conf", "/etc/memcached.conf"); err != nil {
		return err
	}
	return d.Services().Restart(ctx, models.ServiceMemcached)
}

func (d *Deployer) SetupNginx(ctx context.Context) error {
	available := path.Join("/etc/nginx/sites-available", d.target.Project)
	if err := d.installConfig(ctx, "nginx", d.target.Env.String(), available); err != nil {
		return err
	}
	if err := d.run(ctx, remote.Cmd("ln", "-sf", available, "/etc/nginx/sites-enabled/").Sudo()); err != nil {
		return err
	}
	return d.Services().Restart(ctx, models.ServiceNginx)
}
