package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
)

const DefaultReporter = "post"

type App struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// Sources toggles the context providers attached to every report.
type Sources struct {
	Host    bool `yaml:"host"`
	Systemd bool `yaml:"systemd"`
	Docker  bool `yaml:"docker"`
}

type Config struct {
	Reporters   []string `yaml:"reporters"`
	Settings    Settings `yaml:"settings"`
	App         App      `yaml:"app"`
	Context     Sources  `yaml:"context"`
	JournalPath string   `yaml:"journal_path"`
	LogLevel    string   `yaml:"log_level"`
	LogFormat   string   `yaml:"log_format"` // "text" or "json"
}

func Load(path string) (Config, error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return Config{}, readErr
	}
	var c Config
	if unErr := yaml.Unmarshal(data, &c); unErr != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, unErr)
	}
	if len(c.Reporters) == 0 {
		c.Reporters = []string{DefaultReporter}
	}
	for i, name := range c.Reporters {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			return Config{}, errors.New("reporters: empty reporter name")
		}
		c.Reporters[i] = name
	}
	if c.Settings == nil {
		c.Settings = Settings{}
	}
	for k, v := range c.Settings {
		c.Settings[k] = os.ExpandEnv(v)
	}
	return c, nil
}

func ParseSlogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Settings is the flat key→value mapping handed to reporters.
type Settings map[string]string

// Lookup returns the trimmed value and whether the key was present.
func (s Settings) Lookup(key string) (string, bool) {
	v, ok := s[key]
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (s Settings) String(key, def string) string {
	if v, ok := s.Lookup(key); ok && v != "" {
		return v
	}
	return def
}

func (s Settings) Duration(key string, def time.Duration) (time.Duration, error) {
	v, ok := s.Lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return def, fmt.Errorf("%s: must be positive, got %s", key, v)
	}
	return d, nil
}

func (s Settings) Bool(key string, def bool) (bool, error) {
	v, ok := s.Lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func (s Settings) Int64(key string, def int64) (int64, error) {
	v, ok := s.Lookup(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return def, fmt.Errorf("%s: must be positive, got %d", key, n)
	}
	return n, nil
}
