// Package config loads lexicard's settings from a YAML file, LEXICARD_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/lexicard/internal/domain"
)

const envPrefix = "LEXICARD_"

// ConfigFlag names the flag holding the config file path.
const ConfigFlag = "config"

// Config is the full application configuration.
type Config struct {
	DB       string  `koanf:"db" validate:"required"`
	Addr     string  `koanf:"addr" validate:"required"`
	ReposDir string  `koanf:"repos_dir" validate:"required"`
	Session  Session `koanf:"session"`
	Log      Log     `koanf:"log"`
}

type Session struct {
	Size int    `koanf:"size" validate:"min=1,max=500"`
	Mode string `koanf:"mode" validate:"omitempty,oneof=term-to-translation translation-to-term phonetic listen"`
	// Seed makes session composition reproducible; 0 uses entropy.
	Seed uint64 `koanf:"seed"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// RegisterFlags adds every setting to fs. Flag defaults are the
// configuration defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(ConfigFlag, "", "Path to a YAML config file")
	fs.String("db", "lexicard.db", "Path to the SQLite database file")
	fs.String("addr", ":8080", "Address the HTTP server listens on")
	fs.String("repos-dir", "repos", "Directory git sources are checked out into")
	fs.Int("session-size", 20, "Number of items in a practice session")
	fs.String("session-mode", "", "Preferred quiz mode")
	fs.Uint64("session-seed", 0, "Seed for session shuffling, 0 for random")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
}

// Load reads the configuration. fs must have been set up with RegisterFlags
// and parsed.
func Load(fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	path, err := fs.GetString(ConfigFlag)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read --%s: %w", ConfigFlag, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	// Changed flags override; defaults only fill keys nothing else set.
	flags := posflag.ProviderWithFlag(fs, ".", k, func(f *pflag.Flag) (string, interface{}) {
		if f.Name == ConfigFlag {
			return "", nil
		}
		return flagKey(f.Name), posflag.FlagVal(fs, f)
	})
	if err := k.Load(flags, nil); err != nil {
		return Config{}, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

var sections = []string{"session", "log"}

// envKey maps LEXICARD_SESSION_SIZE to session.size and LEXICARD_REPOS_DIR
// to repos_dir.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return sectionKey(key, "_")
}

// flagKey maps --session-size to session.size and --repos-dir to repos_dir.
func flagKey(name string) string {
	return strings.ReplaceAll(sectionKey(name, "-"), "-", "_")
}

func sectionKey(key, sep string) string {
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+sep); ok {
			return section + "." + rest
		}
	}
	return key
}

// QuizMode returns the preferred quiz mode, empty when none is set.
func (c Config) QuizMode() domain.QuizMode {
	return domain.QuizMode(c.Session.Mode)
}

// NewLogger builds the logger described by c.Log.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
