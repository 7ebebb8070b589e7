package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var ErrMissingHost = errors.New("no host configured for environment")

type Config struct {
	Project            string                       `mapstructure:"project"`
	Virtualenv         string                       `mapstructure:"virtualenv"`
	Repository         string                       `mapstructure:"repository"`
	Environments       map[string]EnvironmentConfig `mapstructure:"environments"`
	Remote             RemoteConfig                 `mapstructure:"remote"`
	Packages           PackagesConfig               `mapstructure:"packages"`
	ManagementCommands []string                     `mapstructure:"management_commands"`
	Features           FeaturesConfig               `mapstructure:"features"`
	SearchIndex        SearchIndexConfig            `mapstructure:"search_index"`
	CI                 CIConfig                     `mapstructure:"ci"`
	SSH                SSHConfig                    `mapstructure:"ssh"`
	Backups            BackupsConfig                `mapstructure:"backups"`
	Telemetry          TelemetryConfig              `mapstructure:"telemetry"`
	Metrics            MetricsConfig                `mapstructure:"metrics"`
}

// EnvironmentConfig is the connection info for one named environment.
type EnvironmentConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	KeyFilename string `mapstructure:"key_filename"`
}

type RemoteConfig struct {
	Home        string `mapstructure:"home"`
	SecretsFile string `mapstructure:"secrets_file"`
}

type PackagesConfig struct {
	Additional []string `mapstructure:"additional"`
}

type FeaturesConfig struct {
	SearchIndex  bool `mapstructure:"search_index"`
	ImageLibrary bool `mapstructure:"image_library"`
	TaskQueue    bool `mapstructure:"task_queue"`
}

type SearchIndexConfig struct {
	URL     string `mapstructure:"url"`
	Dirname string `mapstructure:"dirname"`
}

type CIConfig struct {
	SettingsFile string `mapstructure:"settings_file"`
	ServiceUser  string `mapstructure:"service_user"`
	ServiceHome  string `mapstructure:"service_home"`
	NginxSite    string `mapstructure:"nginx_site"`
}

type SSHConfig struct {
	KnownHosts            string        `mapstructure:"known_hosts"`
	InsecureIgnoreHostKey bool          `mapstructure:"insecure_ignore_host_key"`
	DialTimeout           time.Duration `mapstructure:"dial_timeout"`
}

type BackupsConfig struct {
	LocalDir string `mapstructure:"local_dir"`
}

type TelemetryConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ServiceName     string        `mapstructure:"service_name"`
	CollectorHost   string        `mapstructure:"collector_host"`
	CollectorPort   int           `mapstructure:"collector_port"`
	MetricsInterval time.Duration `mapstructure:"metrics_interval"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
}

// Environment returns the connection settings for name.
func (c *Config) Environment(name string) (EnvironmentConfig, error) {
	env, ok := c.Environments[name]
	if !ok || env.Host == "" {
		return EnvironmentConfig{}, fmt.Errorf("%w: %s", ErrMissingHost, name)
	}
	if env.Port == 0 {
		env.Port = 22
	}
	if env.User == "" {
		env.User = "ubuntu"
	}
	return env, nil
}

type ConfigManager struct {
	config     *Config
	configPath string
	mutex      sync.RWMutex
}

// NewConfigManager returns a manager that lazily loads path.
func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{configPath: path}
}

func (cm *ConfigManager) SetConfigPath(path string) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()
	cm.configPath = path
	cm.config = nil
}

func (cm *ConfigManager) GetConfigPath() string {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return cm.configPath
}

func (cm *ConfigManager) GetConfig() (*Config, error) {
	cm.mutex.RLock()
	if cm.config != nil {
		defer cm.mutex.RUnlock()
		return cm.config, nil
	}
	cm.mutex.RUnlock()

	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if cm.config != nil {
		return cm.config, nil
	}

	var err error
	cm.config, err = LoadConfig(cm.configPath)
	return cm.config, err
}

func (cm *ConfigManager) ReloadConfig() (*Config, error) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	var err error
	cm.config, err = LoadConfig(cm.configPath)
	return cm.config, err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.home", "/home/ubuntu")
	v.SetDefault("remote.secrets_file", ".secrets")
	v.SetDefault("search_index.url", "https://download.elastic.co/elasticsearch/elasticsearch/elasticsearch-0.90.13.tar.gz")
	v.SetDefault("search_index.dirname", "elasticsearch")
	v.SetDefault("ci.service_user", "jenkins")
	v.SetDefault("ci.service_home", "/var/lib/jenkins")
	v.SetDefault("ci.nginx_site", "tools/nginx/ci")
	v.SetDefault("ssh.dial_timeout", 30*time.Second)
	v.SetDefault("backups.local_dir", "backups")
	v.SetDefault("telemetry.service_name", "parity-provision")
	v.SetDefault("telemetry.collector_host", "localhost")
	v.SetDefault("telemetry.collector_port", 4317)
	v.SetDefault("telemetry.metrics_interval", 10*time.Second)
}

// LoadConfig reads a YAML (or any viper-supported) file and applies
// PROVISION_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetEnvPrefix("PROVISION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the fields every task depends on.
func (c *Config) Validate() error {
	if c.Project == "" {
		return errors.New("config: project is required")
	}
	if c.Virtualenv == "" {
		c.Virtualenv = c.Project
	}
	if c.Repository == "" {
		return errors.New("config: repository is required")
	}
	return nil
}
