package provision

import (
	"context"
	"errors"

	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/pipeline"
	"github.com/theblitlabs/parity-provision/internal/remote"
)

const jenkinsSite = "/etc/nginx/sites-available/jenkins"

// CIBootstrapper builds the pipeline that sets up the Jenkins server.
type CIBootstrapper struct {
	*Provisioner
}

func (c *CIBootstrapper) Pipeline() *pipeline.Pipeline {
	inst := c.Installer()
	npm := func(name string) func(context.Context) error {
		return func(ctx context.Context) error { return inst.NPMGlobal(ctx, name) }
	}

	var settings *Settings

	return pipeline.New("ci",
		pipeline.Step{Name: "jenkins", Run: inst.Jenkins},
		pipeline.Step{Name: "git", Run: inst.Git},
		pipeline.Step{Name: "nginx", Run: inst.Nginx},
		pipeline.Step{Name: "virtualenvwrapper", Run: inst.VirtualenvWrapper},
		pipeline.Step{Name: "postgres", Run: inst.Postgres},
		pipeline.Step{Name: "npm", Run: inst.NPM},
		pipeline.Step{Name: "jshint", Run: npm("jshint")},
		pipeline.Step{Name: "csslint", Run: npm("csslint")},
		pipeline.Step{Name: "sloccount", Run: inst.Sloccount},
		pipeline.Step{Name: "fonts", Run: inst.Fonts},
		pipeline.Step{Name: "additional-packages", Run: inst.Additional},
		pipeline.Step{Name: "ci-nginx", Description: "Upload and enable the Jenkins nginx site", Run: c.UploadNginxSite},
		pipeline.Step{Name: "ci-settings", Description: "Load the CI application settings", Run: func(ctx context.Context) error {
			s, err := c.loadSettings()
			settings = s
			return err
		}},
		pipeline.Step{Name: "database", Description: "Provision the CI database from settings", Run: func(ctx context.Context) error {
			if settings == nil {
				s, err := c.loadSettings()
				if err != nil {
					return err
				}
				settings = s
			}
			creds, err := settings.DatabaseCredentials()
			if err != nil {
				return err
			}
			return c.Database().Setup(ctx, creds)
		}},
		pipeline.Step{Name: "service-key", Description: "Create the service account deploy key", Run: func(ctx context.Context) error {
			return c.Keys().AddDeployKey(ctx, c.cfg.CI.ServiceUser, c.cfg.CI.ServiceHome)
		}},
		pipeline.Step{Name: "env-keys", Description: "Give the service account the environment keys", Run: func(ctx context.Context) error {
			_, err := c.Keys().UploadEnvKeys(ctx)
			return err
		}},
		pipeline.Step{Name: "restart-nginx", Run: func(ctx context.Context) error {
			return c.Services().Restart(ctx, models.ServiceNginx)
		}},
	)
}

func (c *CIBootstrapper) loadSettings() (*Settings, error) {
	if c.cfg.CI.SettingsFile == "" {
		return nil, errors.New("ci.settings_file is not configured")
	}
	return LoadSettings(c.cfg.CI.SettingsFile)
}

// UploadNginxSite uploads the local CI site definition and enables it.
func (c *CIBootstrapper) UploadNginxSite(ctx context.Context) error {
	if err := c.exec.Put(ctx, c.cfg.CI.NginxSite, jenkinsSite, remote.PutOptions{UseSudo: true}); err != nil {
		return err
	}
	return c.run(ctx, remote.Cmd("ln", "-sf", jenkinsSite, "/etc/nginx/sites-enabled/").Sudo())
}
