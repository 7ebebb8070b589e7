package provision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-provision/internal/core/config"
	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/internal/remote"
)

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
	// onSleep runs on every Sleep, before it returns.
	onSleep func(time.Duration)
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Sleep(d time.Duration) {
	f.sleeps = append(f.sleeps, d)
	if f.onSleep != nil {
		f.onSleep(d)
	}
}

func testConfig() *config.Config {
	return &config.Config{
		Project:    "shop",
		Virtualenv: "shop",
		Repository: "git@bitbucket.org:acme/shop.git",
		Environments: map[string]config.EnvironmentConfig{
			"development": {Host: "dev.example.com", Port: 22, User: "ubuntu", KeyFilename: "dev.pem"},
			"staging":     {Host: "staging.example.com", Port: 22, User: "ubuntu", KeyFilename: "staging.pem"},
			"production":  {Host: "prod.example.com", Port: 22, User: "ubuntu", KeyFilename: "prod.pem"},
			"ci":          {Host: "ci.example.com", Port: 22, User: "ubuntu", KeyFilename: "ci.pem"},
		},
		Remote:      config.RemoteConfig{Home: "/home/ubuntu", SecretsFile: ".secrets"},
		SearchIndex: config.SearchIndexConfig{URL: "https://example.com/elasticsearch-0.90.13.tar.gz", Dirname: "elasticsearch"},
		CI: config.CIConfig{
			ServiceUser: "jenkins",
			ServiceHome: "/var/lib/jenkins",
			NginxSite:   "tools/nginx/ci",
		},
		Backups: config.BackupsConfig{LocalDir: "backups"},
	}
}

type fixture struct {
	p     *Provisioner
	rec   *remote.Recorder
	clock *fakeClock
	cfg   *config.Config
}

func newFixture(t *testing.T, env models.EnvironmentType, mutate func(*config.Config), opts ...Option) *fixture {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	target, err := models.SelectTarget(env, cfg)
	require.NoError(t, err)

	rec := remote.NewRecorder()
	clk := &fakeClock{now: time.Date(2026, 10, 19, 14, 30, 5, 0, time.UTC)}
	opts = append([]Option{WithClock(clk), WithPrompter(FixedPrompter{Answer: false})}, opts...)
	return &fixture{
		p:     New(target, cfg, rec, opts...),
		rec:   rec,
		clock: clk,
		cfg:   cfg,
	}
}
