// Package config loads vocabox settings from defaults, a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variables before they are mapped
// to keys; "__" separates nested keys, e.g. VOCABOX_HTTP__ADDR.
const EnvPrefix = "VOCABOX_"

type Config struct {
	DB      DBConfig   `koanf:"db"`
	HTTP    HTTPConfig `koanf:"http"`
	Log     LogConfig  `koanf:"log"`
	Quiz    QuizConfig `koanf:"quiz"`
	Repos   string     `koanf:"repos_dir" validate:"required"`
	Sources []string   `koanf:"sources" validate:"dive,required"`
}

type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" validate:"required,hostname_port"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type QuizConfig struct {
	Size       int           `koanf:"size" validate:"min=1"`
	MinDeck    int           `koanf:"min_deck" validate:"min=4"`
	SessionTTL time.Duration `koanf:"session_ttl" validate:"min=1m"`
}

func defaults() map[string]any {
	return map[string]any{
		"db.path":          "vocabox.db",
		"http.addr":        "127.0.0.1:8080",
		"log.level":        "info",
		"log.format":       "text",
		"quiz.size":        10,
		"quiz.min_deck":    4,
		"quiz.session_ttl": "24h",
		"repos_dir":        "repos",
	}
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"db":        "db.path",
	"addr":      "http.addr",
	"log-level": "log.level",
	"repos":     "repos_dir",
	"quiz-size": "quiz.size",
}

// Flags registers the flags that override configuration keys.
func Flags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to a YAML config file")
	flags.String("env-file", ".env", "Path to a dotenv file to load into the environment")
	flags.String("db", "vocabox.db", "Path to the SQLite database file")
	flags.String("addr", "127.0.0.1:8080", "HTTP listen address")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("repos", "repos", "Directory for git deck checkouts")
	flags.Int("quiz-size", 10, "Default number of questions per quiz")
}

// Load builds the configuration. Only flags explicitly set on the command
// line override lower layers.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path, _ := flags.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if envFile, _ := flags.GetString("env-file"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, interface{}) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		key = strings.ReplaceAll(key, "__", ".")
		if key == "sources" {
			return key, strings.Split(value, ",")
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	err = k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
		key, ok := flagKeys[f.Name]
		if !ok || !f.Changed {
			return "", nil
		}
		return key, posflag.FlagVal(flags, f)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// SlogLevel converts the configured level name.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger described by c, writing to stderr.
func (c LogConfig) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
