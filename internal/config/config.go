// Package config layers flags, environment, config file and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full run configuration
type Config struct {
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Journal JournalConfig `mapstructure:"journal"`
	Log     LogConfig     `mapstructure:"log"`
}

// MySQLConfig holds the connection settings
type MySQLConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Port     string `mapstructure:"port"`
}

// SyncConfig controls resolution and synchronization
type SyncConfig struct {
	Entities         string        `mapstructure:"entities"`
	Mode             string        `mapstructure:"mode"`
	MappingAll       bool          `mapstructure:"mapping_all"`
	UseGeneratedKeys bool          `mapstructure:"use_generated_keys"`
	DryRun           bool          `mapstructure:"dry_run"`
	ContinueOnError  bool          `mapstructure:"continue_on_error"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Engine           string        `mapstructure:"engine"`
	Charset          string        `mapstructure:"charset"`
}

// JournalConfig controls the SQLite DDL journal
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig controls the application log and the gen log
type LogConfig struct {
	Level  string `mapstructure:"level"`
	GenLog string `mapstructure:"gen_log"`
}

// EnvPrefix prefixes every non-connection environment variable
const EnvPrefix = "SCHEMA_SYNC"

// ConfigName is the config file name searched in the working directory
const ConfigName = "schema-sync"

// DefaultJournalPath is used when the journal is enabled without a path
const DefaultJournalPath = ".schema-sync/journal.db"

// connection settings keep their MYSQL_* variable names
var mysqlEnv = map[string]string{
	"mysql.host":     "MYSQL_HOST",
	"mysql.user":     "MYSQL_USER",
	"mysql.password": "MYSQL_PASSWORD",
	"mysql.database": "MYSQL_DATABASE",
	"mysql.port":     "MYSQL_PORT",
}

// FlagKeys maps command line flag names to config keys
var FlagKeys = map[string]string{
	"host":              "mysql.host",
	"user":              "mysql.user",
	"password":          "mysql.password",
	"database":          "mysql.database",
	"port":              "mysql.port",
	"entities":          "sync.entities",
	"mode":              "sync.mode",
	"mapping-all":       "sync.mapping_all",
	"generated-keys":    "sync.use_generated_keys",
	"dry-run":           "sync.dry_run",
	"continue-on-error": "sync.continue_on_error",
	"timeout":           "sync.timeout",
	"journal":           "journal.path",
	"log-level":         "log.level",
	"gen-log":           "log.gen_log",
}

// New returns a viper instance with defaults and environment bindings
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("mysql.host", "localhost")
	v.SetDefault("mysql.user", "root")
	v.SetDefault("mysql.password", "")
	v.SetDefault("mysql.database", "")
	v.SetDefault("mysql.port", "3306")

	v.SetDefault("sync.entities", "entities.yaml")
	v.SetDefault("sync.mode", "map-all")
	v.SetDefault("sync.mapping_all", true)
	v.SetDefault("sync.use_generated_keys", false)
	v.SetDefault("sync.dry_run", false)
	v.SetDefault("sync.continue_on_error", false)
	v.SetDefault("sync.timeout", time.Duration(0))
	v.SetDefault("sync.engine", "InnoDB")
	v.SetDefault("sync.charset", "utf8mb4")

	v.SetDefault("journal.enabled", false)
	v.SetDefault("journal.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.gen_log", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range mysqlEnv {
		_ = v.BindEnv(key, env)
	}

	return v
}

// BindFlags binds every known flag present in the set
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range FlagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file and unmarshals the layered configuration.
// An explicit cfgFile must exist; the default schema-sync.yaml is optional.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(ConfigName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	switch {
	case cfg.Journal.Path != "":
		cfg.Journal.Enabled = true
	case cfg.Journal.Enabled:
		cfg.Journal.Path = DefaultJournalPath
	}
	return &cfg, nil
}
