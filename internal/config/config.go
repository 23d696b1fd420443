package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProxyConfig holds the public front door settings.
type ProxyConfig struct {
	Port            string        `mapstructure:"port"`
	Domain          string        `mapstructure:"domain"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// AdminConfig holds the admin API settings.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
}

// DockerConfig holds container runtime settings.
type DockerConfig struct {
	ManagedLabel string `mapstructure:"managed_label"`
}

// DNSConfig holds the CoreDNS/etcd publishing settings.
type DNSConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	HostIP      string        `mapstructure:"host_ip"`
	Endpoints   []string      `mapstructure:"etcd_endpoints"`
	PathPrefix  string        `mapstructure:"etcd_path_prefix"`
	DialTimeout time.Duration `mapstructure:"etcd_dial_timeout"`
}

// LoggingConfig holds the logging-related configuration.
type LoggingConfig struct {
	Level string `mapstructure:"log_level"`
}

// Config is the top-level configuration struct.
type Config struct {
	Proxy   ProxyConfig   `mapstructure:"proxy"`
	Admin   AdminConfig   `mapstructure:"admin"`
	Docker  DockerConfig  `mapstructure:"docker"`
	DNS     DNSConfig     `mapstructure:"dns"`
	Logging LoggingConfig `mapstructure:"log"`
}

// SetDefaults registers the default value of every setting.
func SetDefaults() {
	viper.SetDefault("proxy.port", "8080")
	viper.SetDefault("proxy.domain", "dock-route.local")
	viper.SetDefault("proxy.shutdown_timeout", "10s")
	viper.SetDefault("admin.enabled", true)
	viper.SetDefault("admin.port", "8090")
	viper.SetDefault("docker.managed_label", "managed-by=dock-route")
	viper.SetDefault("dns.enabled", false)
	viper.SetDefault("dns.host_ip", "127.0.0.1")
	viper.SetDefault("dns.etcd_endpoints", []string{"localhost:2379"})
	viper.SetDefault("dns.etcd_path_prefix", "/skydns")
	viper.SetDefault("dns.etcd_dial_timeout", "2s")
	viper.SetDefault("log.log_level", "INFO")
}

// InitConfig sets defaults, reads the config file if there is one and
// enables environment overrides (proxy.port -> PROXY_PORT).
func InitConfig(cfgFile string) error {
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config") // Looks for config.yaml
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file: defaults and env vars only.
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return nil
}

// Load unmarshals the configuration into the Config struct.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if config.Proxy.Port == "" {
		return nil, errors.New("proxy.port must be set")
	}
	if config.DNS.Enabled && len(config.DNS.Endpoints) == 0 {
		return nil, errors.New("dns.etcd_endpoints must be set when dns is enabled")
	}
	return &config, nil
}
