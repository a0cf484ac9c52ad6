package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	// Server
	ServerPort string

	// Database (optional event journal)
	DatabaseURL string

	// Logging
	LogLevel  string
	LogFormat string

	GitHub GitHub
	Agent  Agent
	SSH    SSH
	Jobs   Jobs

	// Recipe catalog file; empty uses the built-in catalog
	RecipesFile string

	// AWS (EC2 host resolution for remote jobs)
	AWSRegion string

	// AuthFile is the local credential store
	AuthFile string

	// Simulate wires in-process doubles for every external service
	Simulate bool
}

// GitHub configures the source-control client
type GitHub struct {
	APIURL string
	Token  string
}

// Agent configures the AI agent session client
type Agent struct {
	APIURL string
	Token  string
}

// SSH configures remote execution
type SSH struct {
	// Codespace endpoint used by scaffold jobs (usually a forwarded port)
	ScaffoldHost string
	ScaffoldPort int
	ScaffoldUser string

	KnownHostsFile string
	KeyDir         string
	ConnectTimeout time.Duration
}

// Jobs configures pipeline timing and registry retention
type Jobs struct {
	PollInterval        time.Duration
	MaxPollFailures     int
	EnvironmentInterval time.Duration
	EnvironmentAttempts int
	RetainTerminated    time.Duration
	SweepInterval       time.Duration
}

// Load loads configuration from an optional file and CC_* environment variables
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("cc")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("$HOME/.command-center")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	cfg := &Config{
		ServerPort:  v.GetString("server.port"),
		DatabaseURL: v.GetString("database.url"),
		LogLevel:    v.GetString("log.level"),
		LogFormat:   v.GetString("log.format"),
		GitHub: GitHub{
			APIURL: v.GetString("github.api_url"),
			Token:  v.GetString("github.token"),
		},
		Agent: Agent{
			APIURL: v.GetString("agent.api_url"),
			Token:  v.GetString("agent.token"),
		},
		SSH: SSH{
			ScaffoldHost:   v.GetString("ssh.scaffold_host"),
			ScaffoldPort:   v.GetInt("ssh.scaffold_port"),
			ScaffoldUser:   v.GetString("ssh.scaffold_user"),
			KnownHostsFile: v.GetString("ssh.known_hosts"),
			KeyDir:         v.GetString("ssh.key_dir"),
			ConnectTimeout: v.GetDuration("ssh.connect_timeout"),
		},
		Jobs: Jobs{
			PollInterval:        v.GetDuration("jobs.poll_interval"),
			MaxPollFailures:     v.GetInt("jobs.max_poll_failures"),
			EnvironmentInterval: v.GetDuration("jobs.environment_interval"),
			EnvironmentAttempts: v.GetInt("jobs.environment_attempts"),
			RetainTerminated:    v.GetDuration("jobs.retain_terminated"),
			SweepInterval:       v.GetDuration("jobs.sweep_interval"),
		},
		RecipesFile: v.GetString("recipes.file"),
		AWSRegion:   v.GetString("aws.region"),
		AuthFile:    v.GetString("auth.file"),
		Simulate:    v.GetBool("dev.simulate"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a job
func (c *Config) Validate() error {
	if c.Jobs.PollInterval <= 0 {
		return fmt.Errorf("jobs.poll_interval must be positive, got %s", c.Jobs.PollInterval)
	}
	if c.Jobs.EnvironmentAttempts <= 0 {
		return fmt.Errorf("jobs.environment_attempts must be positive, got %d", c.Jobs.EnvironmentAttempts)
	}
	if c.SSH.ScaffoldPort <= 0 || c.SSH.ScaffoldPort > 65535 {
		return fmt.Errorf("ssh.scaffold_port out of range: %d", c.SSH.ScaffoldPort)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("database.url", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("github.api_url", "https://api.github.com/")
	v.SetDefault("github.token", "")
	v.SetDefault("agent.api_url", "https://jules.googleapis.com/v1/")
	v.SetDefault("agent.token", "")

	v.SetDefault("ssh.scaffold_host", "localhost")
	v.SetDefault("ssh.scaffold_port", 2222)
	v.SetDefault("ssh.scaffold_user", "codespace")
	v.SetDefault("ssh.known_hosts", "")
	v.SetDefault("ssh.key_dir", "")
	v.SetDefault("ssh.connect_timeout", 30*time.Second)

	v.SetDefault("jobs.poll_interval", 5*time.Second)
	v.SetDefault("jobs.max_poll_failures", 12)
	v.SetDefault("jobs.environment_interval", 5*time.Second)
	v.SetDefault("jobs.environment_attempts", 60)
	v.SetDefault("jobs.retain_terminated", time.Hour)
	v.SetDefault("jobs.sweep_interval", time.Minute)

	v.SetDefault("recipes.file", "")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("auth.file", "")
	v.SetDefault("dev.simulate", false)
}
