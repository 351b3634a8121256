package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Remote       DatabaseConnection `mapstructure:"remote"`
	Local        LocalStorage       `mapstructure:"local"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Scheduler    SchedulerConfig    `mapstructure:"scheduler"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type DatabaseConnection struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

type LocalStorage struct {
	FilePath string `mapstructure:"file_path"`
}

type SyncConfig struct {
	Tables           []TableConfig `mapstructure:"tables"`
	MaxRetries       int           `mapstructure:"max_retries"`
	OperationTimeout string        `mapstructure:"operation_timeout"`
}

// GetOperationTimeout returns the per-operation remote timeout, or zero when unset or invalid.
func (s SyncConfig) GetOperationTimeout() time.Duration {
	d, _ := time.ParseDuration(s.OperationTimeout)
	return d
}

// TableNames lists the remote tables the service is allowed to write.
func (s SyncConfig) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for _, t := range s.Tables {
		names = append(names, t.Name)
	}
	return names
}

type TableConfig struct {
	Name       string `mapstructure:"name"`
	PrimaryKey string `mapstructure:"primary_key"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval"`
}

type ConnectivityConfig struct {
	ProbeInterval string `mapstructure:"probe_interval"`
	ProbeTimeout  string `mapstructure:"probe_timeout"`
}

func (c ConnectivityConfig) GetProbeInterval() time.Duration {
	d, _ := time.ParseDuration(c.ProbeInterval)
	return d
}

func (c ConnectivityConfig) GetProbeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.ProbeTimeout)
	return d
}

type ServerConfig struct {
	Port         int      `mapstructure:"port"`
	Host         string   `mapstructure:"host"`
	AuthToken    string   `mapstructure:"auth_token"`
	ReadTimeout  string   `mapstructure:"read_timeout"`
	WriteTimeout string   `mapstructure:"write_timeout"`
	CorsOrigins  []string `mapstructure:"cors_origins"`
}

func (s ServerConfig) GetReadTimeout() time.Duration {
	d, _ := time.ParseDuration(s.ReadTimeout)
	return d
}

func (s ServerConfig) GetWriteTimeout() time.Duration {
	d, _ := time.ParseDuration(s.WriteTimeout)
	return d
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// LoadConfig reads the YAML file at path and applies defaults and TRAKN_* environment
// overrides. A missing file is not an error; defaults and the environment still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TRAKN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !isNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Local.FilePath == "" {
		return fmt.Errorf("local.file_path is required")
	}
	if c.Sync.MaxRetries < 0 {
		return fmt.Errorf("sync.max_retries must not be negative")
	}
	for i, t := range c.Sync.Tables {
		if t.Name == "" {
			return fmt.Errorf("sync.tables[%d].name is required", i)
		}
		if t.PrimaryKey == "" {
			c.Sync.Tables[i].PrimaryKey = "id"
		}
	}
	return nil
}

func isNotExist(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("remote.host", "127.0.0.1")
	v.SetDefault("remote.port", 3306)
	v.SetDefault("local.file_path", "trakn.db")

	v.SetDefault("sync.max_retries", 5)
	v.SetDefault("sync.operation_timeout", "10s")
	v.SetDefault("sync.tables", []map[string]interface{}{
		{"name": "workouts", "primary_key": "id"},
		{"name": "workout_exercises", "primary_key": "id"},
		{"name": "workout_sessions", "primary_key": "id"},
		{"name": "session_sets", "primary_key": "id"},
		{"name": "exercises", "primary_key": "id"},
		{"name": "training_plans", "primary_key": "id"},
		{"name": "plan_workouts", "primary_key": "id"},
	})

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval", "@every 30s")

	v.SetDefault("connectivity.probe_interval", "5s")
	v.SetDefault("connectivity.probe_timeout", "2s")

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "0s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)
}
