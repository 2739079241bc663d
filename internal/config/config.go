// Package config loads qbank settings. Sources are applied in order, each
// overriding the last: flag defaults, an optional YAML file, QBANK_*
// environment variables, then flags given on the command line.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const (
	envPrefix         = "QBANK_"
	defaultConfigFile = "qbank.yaml"
)

// Config holds all application configuration.
type Config struct {
	DB       string       `koanf:"db" validate:"required"`
	ReposDir string       `koanf:"repos_dir" validate:"required"`
	HTTP     HTTPConfig   `koanf:"http"`
	Log      LogConfig    `koanf:"log"`
	Export   ExportConfig `koanf:"export"`
	List     ListConfig   `koanf:"list"`
}

// HTTPConfig configures the JSON API server.
type HTTPConfig struct {
	Addr string `koanf:"addr" validate:"required,hostname_port"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `koanf:"level" validate:"required,oneof=debug info warn error"`
	Format string `koanf:"format" validate:"required,oneof=text json"`
	File   string `koanf:"file"`
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	Format string `koanf:"format" validate:"required,oneof=json yaml markdown"`
}

// ListConfig holds defaults for listing questions.
type ListConfig struct {
	Sort        string `koanf:"sort" validate:"oneof=none asc desc"`
	ShowAnswers bool   `koanf:"show_answers"`
}

// NewFlagSet returns the global flags. Parsing stops at the first non-flag
// argument so that subcommands can parse their own flags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.String("config", "", "path to a YAML config file (default ./"+defaultConfigFile+" when present)")
	fs.String("db", "qbank.db", "path to the SQLite database file")
	fs.String("repos-dir", "repos", "directory where git sources are checked out")
	fs.String("http.addr", "127.0.0.1:8080", "listen address of the JSON API")
	fs.String("log.level", "info", "log level: debug, info, warn or error")
	fs.String("log.format", "text", "log format: text or json")
	fs.String("log.file", "", "write logs to this file with rotation instead of stderr")
	fs.String("export.format", "json", "default export format: json, yaml or markdown")
	fs.String("list.sort", "none", "default list order: none, asc or desc")
	fs.Bool("list.show-answers", false, "show answers when listing questions")
	return fs
}

// Load builds a Config from the parsed flag set, the config file and the
// environment. A .env file in the working directory is read first.
func Load(fs *pflag.FlagSet) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	k := koanf.New(".")

	if path := configPath(fs); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unchanged flags only fill keys that no other source has set.
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey(fs)), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// configPath returns the file named by --config or QBANK_CONFIG, else the
// default file when it exists.
func configPath(fs *pflag.FlagSet) string {
	if p, err := fs.GetString("config"); err == nil && p != "" {
		return p
	}
	if p := os.Getenv(envPrefix + "CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

var sections = []string{"http", "log", "export", "list"}

// envKey maps QBANK_LOG_LEVEL to log.level and QBANK_REPOS_DIR to repos_dir.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	if key == "config" {
		return ""
	}
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// flagKey maps --repos-dir to repos_dir. The --config flag is not a setting.
func flagKey(fs *pflag.FlagSet) func(*pflag.Flag) (string, interface{}) {
	return func(f *pflag.Flag) (string, interface{}) {
		if f.Name == "config" {
			return "", nil
		}
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
	}
}
