package models

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-provision/internal/core/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Project:    "shop",
		Virtualenv: "shop-env",
		Repository: "git@bitbucket.org:acme/shop.git",
		Environments: map[string]config.EnvironmentConfig{
			"development": {Host: "dev.example.com", KeyFilename: "dev.pem"},
			"staging":     {Host: "staging.example.com", KeyFilename: "staging.pem"},
			"production":  {Host: "prod.example.com", Port: 2222, KeyFilename: "prod.pem"},
			"ci":          {Host: "ci.example.com", KeyFilename: "ci.pem"},
		},
		Remote:      config.RemoteConfig{Home: "/home/ubuntu", SecretsFile: ".secrets"},
		SearchIndex: config.SearchIndexConfig{Dirname: "elasticsearch"},
	}
}

func TestSelectTarget(t *testing.T) {
	cfg := testConfig()

	for _, env := range Environments {
		t.Run(env.String(), func(t *testing.T) {
			target, err := SelectTarget(env, cfg)
			require.NoError(t, err)

			assert.Equal(t, env, target.Env)
			assert.Equal(t, "/home/ubuntu/shop", target.ProjectRoot)
			assert.Equal(t, "/home/ubuntu/shop/shop", target.DjangoRoot)
			assert.Equal(t, "/home/ubuntu/.virtualenvs/shop-env", target.VirtualenvDir)
			assert.Equal(t, "/home/ubuntu/.secrets", target.SecretsFile)
			assert.Empty(t, target.SearchIndexDir)
			assert.True(t, target.HasProject())
			assert.Equal(t, filepath.Join(".ssh", cfg.Environments[string(env)].KeyFilename),
				filepath.Join(filepath.Base(filepath.Dir(target.KeyFile)), filepath.Base(target.KeyFile)))
		})
	}

	t.Run("ci binds connection only", func(t *testing.T) {
		target, err := SelectTarget(EnvironmentCI, cfg)
		require.NoError(t, err)
		assert.Equal(t, "ci.example.com:22", target.Address())
		assert.Equal(t, "ubuntu", target.User)
		assert.False(t, target.HasProject())
		assert.Empty(t, target.DjangoRoot)
		assert.Empty(t, target.VirtualenvDir)
	})

	t.Run("search index path", func(t *testing.T) {
		cfg := testConfig()
		cfg.Features.SearchIndex = true
		target, err := SelectTarget(EnvironmentStaging, cfg)
		require.NoError(t, err)
		assert.Equal(t, "/home/ubuntu/elasticsearch", target.SearchIndexDir)
	})

	t.Run("unknown environment", func(t *testing.T) {
		_, err := SelectTarget("qa", cfg)
		assert.ErrorIs(t, err, ErrUnknownEnvironment)
	})

	t.Run("missing host", func(t *testing.T) {
		cfg := testConfig()
		delete(cfg.Environments, "staging")
		_, err := SelectTarget(EnvironmentStaging, cfg)
		assert.ErrorIs(t, err, config.ErrMissingHost)
	})
}

func TestParseService(t *testing.T) {
	svc, err := ParseService("nginx")
	require.NoError(t, err)
	assert.Equal(t, ServiceNginx, svc)

	svc, err = ParseService("broker")
	require.NoError(t, err)
	assert.Equal(t, ServiceRabbitMQ, svc)

	_, err = ParseService("apache2")
	assert.ErrorIs(t, err, ErrUnknownService)

	assert.False(t, ServiceMemcached.NeedsPTY())
	assert.True(t, ServiceNginx.NeedsPTY())
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("restart")
	require.NoError(t, err)
	assert.Equal(t, ActionRestart, a)

	_, err = ParseAction("reload")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestResolveLog(t *testing.T) {
	target := &Target{Project: "shop", SearchIndexDir: "/home/ubuntu/elasticsearch"}

	assert.Equal(t, "/var/log/nginx/error.log", ResolveLog("nginx-error", target))
	assert.Equal(t, "/var/log/shop/shop.log", ResolveLog("app", target))
	assert.Equal(t, "/home/ubuntu/elasticsearch/logs/elasticsearch.log", ResolveLog("search-index", target))
	assert.Equal(t, "/var/log/syslog", ResolveLog("/var/log/syslog", target))
	assert.Contains(t, LogIDs(), LogNginxError)
}
