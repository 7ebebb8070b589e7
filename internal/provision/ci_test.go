package provision

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/theblitlabs/parity-provision/internal/core/config"
	"github.com/theblitlabs/parity-provision/internal/core/models"
	"github.com/theblitlabs/parity-provision/pkg/logger"
)

type MockPrompter struct {
	mock.Mock
}

func (m *MockPrompter) Confirm(question string, def bool) bool {
	args := m.Called(question, def)
	return args.Bool(0)
}

func writeKeys(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("PRIVATE KEY"), 0o600))
	}
	return dir
}

func TestUploadEnvKeysSkipsMissingKey(t *testing.T) {
	var buf bytes.Buffer
	logger.InitWithWriter(logger.LogModeProd, &buf)
	defer logger.InitWithMode(logger.LogModeTest)

	dir := writeKeys(t, "dev.pem", "prod.pem")
	f := newFixture(t, models.EnvironmentCI, nil, WithLocalKeyDir(dir))

	result, err := f.p.Keys().UploadEnvKeys(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.EnvironmentType{models.EnvironmentDevelopment, models.EnvironmentProduction}, result.Uploaded)
	assert.Equal(t, []models.EnvironmentType{models.EnvironmentStaging}, result.Skipped)
	assert.Contains(t, buf.String(), "Place your staging private key in ssh folder")

	require.Len(t, f.rec.Uploads, 2)
	assert.Equal(t, filepath.Join(dir, "dev.pem"), f.rec.Uploads[0].Local)
	assert.Equal(t, "/var/lib/jenkins/.ssh/", f.rec.Uploads[0].Remote)
	assert.True(t, f.rec.Uploads[0].UseSudo)
	assert.Equal(t, filepath.Join(dir, "prod.pem"), f.rec.Uploads[1].Local)

	accept := f.rec.Calls[f.rec.Index("ssh -o StrictHostKeyChecking=no")]
	assert.Equal(t, "jenkins", accept.User())
	assert.Contains(t, accept.Line(), "ubuntu@dev.example.com")
	assert.Equal(t, 1, f.rec.Count("chown jenkins:jenkins /var/lib/jenkins/.ssh/dev.pem"))
}

func TestUploadEnvKeysToleratesHostKeyFailure(t *testing.T) {
	dir := writeKeys(t, "dev.pem", "staging.pem", "prod.pem")
	f := newFixture(t, models.EnvironmentCI, nil, WithLocalKeyDir(dir))
	f.rec.On("ssh -o StrictHostKeyChecking=no", "Permission denied", 255)

	result, err := f.p.Keys().UploadEnvKeys(context.Background())
	require.NoError(t, err)
	assert.Len(t, result.Uploaded, 3)
	assert.Empty(t, result.Skipped)
}

func TestUploadEnvKeysUsesEnvironmentPort(t *testing.T) {
	dir := writeKeys(t, "prod.pem")
	f := newFixture(t, models.EnvironmentCI, func(c *config.Config) {
		prod := c.Environments["production"]
		prod.Port = 2222
		c.Environments["production"] = prod
	}, WithLocalKeyDir(dir))

	_, err := f.p.Keys().UploadEnvKeys(context.Background())
	require.NoError(t, err)

	accept := f.rec.Calls[f.rec.Index("ubuntu@prod.example.com")]
	assert.Equal(t, []string{
		"ssh", "-o", "StrictHostKeyChecking=no", "-o", "BatchMode=yes",
		"-p", "2222", "-i", "/var/lib/jenkins/.ssh/prod.pem",
		"ubuntu@prod.example.com", "true",
	}, accept.Argv())
}

func TestUploadEnvKeysSkipsUnconfiguredEnvironment(t *testing.T) {
	dir := writeKeys(t, "dev.pem", "staging.pem", "prod.pem")
	f := newFixture(t, models.EnvironmentCI, func(c *config.Config) {
		delete(c.Environments, "production")
	}, WithLocalKeyDir(dir))

	result, err := f.p.Keys().UploadEnvKeys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.EnvironmentType{models.EnvironmentProduction}, result.Skipped)
}

func TestAddDeployKey(t *testing.T) {
	ctx := context.Background()

	t.Run("generates when missing", func(t *testing.T) {
		prompt := &MockPrompter{}
		prompt.On("Confirm", mock.MatchedBy(func(q string) bool { return q != "" }), true).Return(false)

		f := newFixture(t, models.EnvironmentCI, nil, WithPrompter(prompt))
		f.rec.On("test -e /var/lib/jenkins/.ssh/id_rsa.pub", "", 1)

		require.NoError(t, f.p.Keys().AddDeployKey(ctx, "jenkins", "/var/lib/jenkins"))

		keygen := f.rec.Calls[f.rec.Index("ssh-keygen")]
		assert.Equal(t, []string{"ssh-keygen", "-q", "-t", "rsa", "-N", "", "-f", "/var/lib/jenkins/.ssh/id_rsa"}, keygen.Argv())
		assert.Equal(t, "jenkins", keygen.User())
		assert.NotEqual(t, -1, f.rec.Index("cat /var/lib/jenkins/.ssh/id_rsa.pub"))
		assert.Equal(t, -1, f.rec.Index("git ls-remote"))
		prompt.AssertExpectations(t)
	})

	t.Run("keeps existing key unless overwrite confirmed", func(t *testing.T) {
		prompt := &MockPrompter{}
		prompt.On("Confirm", "Pub key already exists. Overwrite?", false).Return(false)
		prompt.On("Confirm", mock.Anything, true).Return(true)

		f := newFixture(t, models.EnvironmentDevelopment, nil, WithPrompter(prompt))

		require.NoError(t, f.p.Keys().AddDeployKey(ctx, "", "/home/ubuntu"))

		assert.Equal(t, -1, f.rec.Index("ssh-keygen"))
		check := f.rec.Calls[f.rec.Index("git ls-remote")]
		assert.Equal(t, []string{"git", "ls-remote", "-h", "git@bitbucket.org:acme/shop.git", "HEAD"}, check.Argv())
		assert.True(t, check.IsInteractive())
		prompt.AssertExpectations(t)
	})

	t.Run("overwrites when confirmed", func(t *testing.T) {
		f := newFixture(t, models.EnvironmentDevelopment, nil, WithPrompter(FixedPrompter{Answer: true}))

		require.NoError(t, f.p.Keys().AddDeployKey(ctx, "", "/home/ubuntu"))
		rm := f.rec.Index("rm -f /home/ubuntu/.ssh/id_rsa /home/ubuntu/.ssh/id_rsa.pub")
		keygen := f.rec.Index("ssh-keygen")
		require.NotEqual(t, -1, rm)
		assert.Greater(t, keygen, rm)
	})
}

func TestCIPipeline(t *testing.T) {
	settings := filepath.Join(t.TempDir(), "ci.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("database_url: postgres://jenkins:pw@localhost:5432/ci\n"), 0o600))
	keys := writeKeys(t, "dev.pem")

	f := newFixture(t, models.EnvironmentCI, func(c *config.Config) {
		c.CI.SettingsFile = settings
		c.Packages.Additional = []string{"htop"}
	}, WithLocalKeyDir(keys))

	p := f.p.CI().Pipeline()
	assert.Equal(t, []string{
		"jenkins", "git", "nginx", "virtualenvwrapper", "postgres", "npm", "jshint", "csslint",
		"sloccount", "fonts", "additional-packages", "ci-nginx", "ci-settings", "database",
		"service-key", "env-keys", "restart-nginx",
	}, p.Names())

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Completed, len(p.Names()))

	assert.NotEqual(t, -1, f.rec.Index("apt-get -y install jenkins"))
	assert.NotEqual(t, -1, f.rec.Index("npm install jshint -g"))
	assert.NotEqual(t, -1, f.rec.Index("apt-get -y install ttf-dejavu"))
	assert.NotEqual(t, -1, f.rec.Index("apt-get -y install htop"))
	assert.Contains(t, f.rec.Calls[f.rec.Index("CREATE DATABASE")].Argv()[2], `"ci" WITH OWNER="jenkins"`)

	require.NotEmpty(t, f.rec.Uploads)
	assert.Equal(t, "tools/nginx/ci", f.rec.Uploads[0].Local)
	assert.Equal(t, "/etc/nginx/sites-available/jenkins", f.rec.Uploads[0].Remote)

	assert.Equal(t, "restart-nginx", report.Completed[len(report.Completed)-1])
	assert.Equal(t, "service nginx restart", f.rec.Lines()[len(f.rec.Calls)-1])
}

func TestCIPipelineMissingSettings(t *testing.T) {
	f := newFixture(t, models.EnvironmentCI, nil)
	p := f.p.CI().Pipeline()

	report, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "ci-settings", report.FailedAt)
	assert.Contains(t, err.Error(), "ci.settings_file is not configured")
}
