// Package config loads process configuration from a YAML file,
// STOWBASE_* environment variables, and defaults, in that order of
// increasing precedence for the environment.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/t7a/stowbase"
	"github.com/t7a/stowbase/hexpath"
)

// EnvPrefix prefixes every environment variable, e.g.
// STOWBASE_MAX_FILES_PER_DIR.
const EnvPrefix = "STOWBASE"

// Config is everything a stowbase process can be told.
type Config struct {
	// Dir is the store root.  STOWBASE_DIR, or failing that DBDIR,
	// overrides it.
	Dir            string        `mapstructure:"dir" validate:"required"`
	Ext            string        `mapstructure:"ext" validate:"required,startswith=.,excludes=/"`
	Algo           string        `mapstructure:"algo" validate:"required"`
	MaxFilesPerDir int           `mapstructure:"max_files_per_dir" validate:"gte=256"`
	MaxBytes       int           `mapstructure:"max_bytes" validate:"gte=16"`
	CacheSize      int           `mapstructure:"cache_size" validate:"gte=0"`
	Workers        int           `mapstructure:"workers" validate:"gte=1,lte=1024"`
	Logging        LoggingConfig `mapstructure:"logging"`
	Stow           StowConfig    `mapstructure:"stow"`
	Mount          MountConfig   `mapstructure:"mount"`
}

// LoggingConfig controls logrus.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error DEBUG INFO WARN ERROR"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
}

// StowConfig controls the drop box.
type StowConfig struct {
	// Dirs are the drop directories; empty means <dir>/stow.
	Dirs []string `mapstructure:"dirs"`
	// WriteLog records stowed ids in <dir>/log.
	WriteLog bool `mapstructure:"write_log"`
}

// MountConfig controls the FUSE view.
type MountConfig struct {
	Debug bool `mapstructure:"debug"`
}

// Load reads the configuration.  With an empty path it looks for
// stowbase.yaml in the working directory and then in the user's config
// directory; a missing file is fine.
func Load(path string) (*Config, error) {
	v := viper.New()
	setupViper(v, path)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return &cfg, nil
}

func setupViper(v *viper.Viper, path string) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal only sees environment variables for keys viper
	// already knows about
	for key, val := range defaults() {
		v.SetDefault(key, val)
	}

	if path != "" {
		v.SetConfigFile(path)
		return
	}
	v.SetConfigName("stowbase")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "stowbase"))
	}
}

func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return errors.Wrap(err, "failed to read config file")
	}
	return nil
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"dir":               "",
		"ext":               stowbase.DefaultExt,
		"algo":              stowbase.DefaultAlgo,
		"max_files_per_dir": hexpath.MinFilesPerDir,
		"max_bytes":         stowbase.DefaultMaxBytes,
		"cache_size":        0,
		"workers":           4,
		"logging.level":     "info",
		"logging.format":    "text",
		"stow.dirs":         []string{},
		"stow.write_log":    true,
		"mount.debug":       false,
	}
}

// ApplyDefaults fills in whatever the file and environment left empty.
func ApplyDefaults(cfg *Config) {
	if cfg.Dir == "" {
		cfg.Dir = os.Getenv("DBDIR")
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Ext == "" {
		cfg.Ext = stowbase.DefaultExt
	}
	if cfg.Algo == "" {
		cfg.Algo = stowbase.DefaultAlgo
	}
	if cfg.MaxFilesPerDir == 0 {
		cfg.MaxFilesPerDir = hexpath.MinFilesPerDir
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = stowbase.DefaultMaxBytes
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
}

// Store returns the store parameters.
func (cfg *Config) Store() stowbase.Config {
	return stowbase.Config{
		Dir:            cfg.Dir,
		Ext:            cfg.Ext,
		Algo:           cfg.Algo,
		MaxFilesPerDir: cfg.MaxFilesPerDir,
		CacheSize:      cfg.CacheSize,
	}
}
