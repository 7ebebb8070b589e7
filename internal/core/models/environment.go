package models

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/theblitlabs/parity-provision/internal/core/config"
)

var ErrUnknownEnvironment = errors.New("unknown environment")

type EnvironmentType string

const (
	EnvironmentDevelopment EnvironmentType = "development"
	EnvironmentStaging     EnvironmentType = "staging"
	EnvironmentProduction  EnvironmentType = "production"
	EnvironmentCI          EnvironmentType = "ci"
)

// Environments lists the application environments in deployment order.
// The CI server is not one of them.
var Environments = []EnvironmentType{
	EnvironmentDevelopment,
	EnvironmentStaging,
	EnvironmentProduction,
}

func ParseEnvironment(s string) (EnvironmentType, error) {
	switch e := EnvironmentType(s); e {
	case EnvironmentDevelopment, EnvironmentStaging, EnvironmentProduction, EnvironmentCI:
		return e, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEnvironment, s)
	}
}

func (e EnvironmentType) String() string {
	return string(e)
}

// Target is the environment context of one invocation: where commands go and
// the remote layout derived from the project configuration.
type Target struct {
	Env     EnvironmentType
	Host    string
	Port    int
	User    string
	KeyFile string

	Home        string
	SecretsFile string

	Project    string
	Virtualenv string
	Repository string

	// Derived paths. Empty for the CI target.
	ProjectRoot    string
	DjangoRoot     string
	VirtualenvDir  string
	SearchIndexDir string
}

// Address returns host:port for dialing.
func (t *Target) Address() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// HasProject reports whether the target carries an application layout.
func (t *Target) HasProject() bool {
	return t.ProjectRoot != ""
}

// LocalKeyPath expands a key filename under the operator's ~/.ssh.
func LocalKeyPath(filename string) (string, error) {
	return homedir.Expand(filepath.Join("~/.ssh", filename))
}

// SelectTarget binds the connection settings of env and, for application
// environments, derives the remote project layout.
func SelectTarget(env EnvironmentType, cfg *config.Config) (*Target, error) {
	if _, err := ParseEnvironment(string(env)); err != nil {
		return nil, err
	}

	ec, err := cfg.Environment(string(env))
	if err != nil {
		return nil, err
	}

	keyFile := ""
	if ec.KeyFilename != "" {
		if keyFile, err = LocalKeyPath(ec.KeyFilename); err != nil {
			return nil, fmt.Errorf("failed to expand key path: %w", err)
		}
	}

	t := &Target{
		Env:         env,
		Host:        ec.Host,
		Port:        ec.Port,
		User:        ec.User,
		KeyFile:     keyFile,
		Home:        cfg.Remote.Home,
		SecretsFile: path.Join(cfg.Remote.Home, cfg.Remote.SecretsFile),
		Repository:  cfg.Repository,
	}

	if env == EnvironmentCI {
		return t, nil
	}

	t.Project = cfg.Project
	t.Virtualenv = cfg.Virtualenv
	t.ProjectRoot = path.Join(t.Home, t.Project)
	t.DjangoRoot = path.Join(t.ProjectRoot, t.Project)
	t.VirtualenvDir = path.Join(t.Home, ".virtualenvs", t.Virtualenv)
	if cfg.Features.SearchIndex {
		t.SearchIndexDir = path.Join(t.Home, cfg.SearchIndex.Dirname)
	}

	return t, nil
}
