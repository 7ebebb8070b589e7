package provision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-provision/internal/core/config"
	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/pipeline"
)

func runDeploy(t *testing.T, f *fixture) (*pipeline.Report, error) {
	t.Helper()
	p, err := f.p.Deployer().Pipeline()
	require.NoError(t, err)
	return p.Run(context.Background())
}

func TestDeployPipelineOrder(t *testing.T) {
	f := newFixture(t, models.EnvironmentStaging, nil)
	p, err := f.p.Deployer().Pipeline()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"additional-packages",
		"fetch-source",
		"create-virtualenv",
		"install-requirements",
		"manage",
		"log-directory",
		"supervisor",
		"memcached",
		"nginx",
	}, p.Names())
}

func TestDeployFetchSource(t *testing.T) {
	t.Run("production pulls without branch checkout", func(t *testing.T) {
		f := newFixture(t, models.EnvironmentProduction, nil)

		_, err := runDeploy(t, f)
		require.NoError(t, err)

		pull := f.rec.Index("git pull")
		require.NotEqual(t, -1, pull)
		assert.Equal(t, []string{"git", "pull"}, f.rec.Calls[pull].Argv())
		assert.Equal(t, "/home/ubuntu/shop", f.rec.Calls[pull].Dir())
		assert.Equal(t, 0, f.rec.Count("git checkout"))
		assert.Equal(t, 0, f.rec.Count("git clone"))
	})

	t.Run("production pull failure aborts", func(t *testing.T) {
		f := newFixture(t, models.EnvironmentProduction, nil)
		f.rec.On("git pull", "conflict", 1)

		report, err := runDeploy(t, f)
		require.Error(t, err)
		assert.Equal(t, "fetch-source", report.FailedAt)
		assert.Equal(t, pipeline.StateAborted, report.State)
		assert.Equal(t, -1, f.rec.Index("pip install"))
	})

	t.Run("staging tracks its branch and tolerates failures", func(t *testing.T) {
		f := newFixture(t, models.EnvironmentStaging, nil)
		f.rec.On("git checkout -b staging", "fatal: branch exists", 128)

		_, err := runDeploy(t, f)
		require.NoError(t, err)

		checkout := f.rec.Index("git checkout -b staging")
		pull := f.rec.Index("git pull origin staging")
		require.NotEqual(t, -1, checkout)
		assert.Greater(t, pull, checkout)
	})

	t.Run("clones when project is missing", func(t *testing.T) {
		f := newFixture(t, models.EnvironmentDevelopment, nil)
		f.rec.On("test -e /home/ubuntu/shop", "", 1)

		_, err := runDeploy(t, f)
		require.NoError(t, err)

		clone := f.rec.Calls[f.rec.Index("git clone")]
		assert.Equal(t, []string{"git", "clone", "git@bitbucket.org:acme/shop.git", "/home/ubuntu/shop"}, clone.Argv())
		assert.Equal(t, 0, f.rec.Count("git pull"))
	})
}

func TestDeployVirtualenvAndRequirements(t *testing.T) {
	f := newFixture(t, models.EnvironmentDevelopment, nil)
	f.rec.On("test -e /home/ubuntu/.virtualenvs/shop", "", 1)

	_, err := runDeploy(t, f)
	require.NoError(t, err)

	mk := f.rec.Index("mkvirtualenv --no-site-packages --distribute shop")
	pip := f.rec.Index("pip install -r requirements/development.txt")
	require.NotEqual(t, -1, mk)
	assert.Greater(t, pip, mk)
	assert.Contains(t, f.rec.Calls[pip].String(), ". /home/ubuntu/.virtualenvs/shop/bin/activate")
}

func TestDeployManagementCommands(t *testing.T) {
	f := newFixture(t, models.EnvironmentStaging, func(c *config.Config) {
		c.ManagementCommands = []string{"python manage.py compress --force"}
	})

	_, err := runDeploy(t, f)
	require.NoError(t, err)

	syncdb := f.rec.Index("python manage.py syncdb --noinput")
	migrate := f.rec.Index("python manage.py migrate --noinput")
	collect := f.rec.Index("python manage.py collectstatic --noinput")
	extra := f.rec.Index("python manage.py compress --force")
	assert.True(t, syncdb < migrate && migrate < collect && collect < extra, "management commands out of order")

	cmd := f.rec.Calls[extra]
	assert.Equal(t, "/home/ubuntu/shop/shop", cmd.Dir())
	assert.Contains(t, cmd.String(), ". /home/ubuntu/.secrets")
}

func TestDeployServiceConfiguration(t *testing.T) {
	f := newFixture(t, models.EnvironmentProduction, nil)

	_, err := runDeploy(t, f)
	require.NoError(t, err)

	lines := []string{
		"mkdir -p /var/log/shop",
		"service supervisor stop",
		"cp tools/supervisor/production.conf /etc/supervisor/conf.d/shop.conf",
		"service supervisor start",
		"cp tools/memcached/production.conf /etc/memcached.conf",
		"service memcached restart",
		"cp tools/nginx/production /etc/nginx/sites-available/shop",
		"ln -sf /etc/nginx/sites-available/shop /etc/nginx/sites-enabled/",
		"service nginx restart",
	}
	last := -1
	for _, line := range lines {
		idx := f.rec.Index(line)
		require.NotEqual(t, -1, idx, line)
		assert.Greater(t, idx, last, line)
		last = idx
	}

	memcached := f.rec.Calls[f.rec.Index("service memcached restart")]
	assert.False(t, memcached.WantsPTY())
}

func TestDeploySearchIndex(t *testing.T) {
	t.Run("disabled never rebuilds", func(t *testing.T) {
		f := newFixture(t, models.EnvironmentStaging, nil)

		_, err := runDeploy(t, f)
		require.NoError(t, err)

		assert.Equal(t, 0, f.rec.Count("rebuild_index"))
		assert.Empty(t, f.clock.sleeps)
	})

	t.Run("enabled rebuilds after settle delay", func(t *testing.T) {
		f := newFixture(t, models.EnvironmentStaging, func(c *config.Config) {
			c.Features.SearchIndex = true
		})
		callsAtSleep := -1
		f.clock.onSleep = func(time.Duration) { callsAtSleep = len(f.rec.Calls) }

		_, err := runDeploy(t, f)
		require.NoError(t, err)

		assert.Equal(t, []time.Duration{10 * time.Second}, f.clock.sleeps)

		start := f.rec.Index("service supervisor start")
		rebuild := f.rec.Index("python manage.py rebuild_index --noinput")
		require.NotEqual(t, -1, rebuild)
		assert.Equal(t, start+1, callsAtSleep, "sleep should follow the supervisor start")
		assert.Equal(t, callsAtSleep, rebuild, "rebuild should follow the sleep")

		conf := f.rec.Index("cp tools/elasticsearch/staging.yml /home/ubuntu/elasticsearch/config/elasticsearch.yml")
		assert.Less(t, conf, start)
	})
}

func TestDeployRequiresProject(t *testing.T) {
	f := newFixture(t, models.EnvironmentCI, nil)
	_, err := f.p.Deployer().Pipeline()
	assert.ErrorIs(t, err, errNoProject)
}

func TestDeploySelectedSteps(t *testing.T) {
	f := newFixture(t, models.EnvironmentProduction, nil)
	p, err := f.p.Deployer().Pipeline()
	require.NoError(t, err)

	sub, err := p.Select([]string{"nginx"})
	require.NoError(t, err)
	_, err = sub.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"cp tools/nginx/production /etc/nginx/sites-available/shop",
		"ln -sf /etc/nginx/sites-available/shop /etc/nginx/sites-enabled/",
		"service nginx restart",
	}, f.rec.Lines())
}
