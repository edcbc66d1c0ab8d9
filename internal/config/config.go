package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"robotodyssey.web/internal/savecodec"
)

type Config struct {
	Autosave AutosaveConfig `yaml:"autosave"`
	Codec    CodecConfig    `yaml:"codec"`
	Engine   EngineConfig   `yaml:"engine"`
	Server   ServerConfig   `yaml:"server"`
}

type AutosaveConfig struct {
	DebounceMs int `yaml:"debounce_ms" envconfig:"DEBOUNCE_MS"`
}

type CodecConfig struct {
	// Alphabet is "url" or "std".
	Alphabet string `yaml:"alphabet" envconfig:"TOKEN_ALPHABET"`
}

type EngineConfig struct {
	MaxUnpackedBytes int `yaml:"max_unpacked_bytes" envconfig:"MAX_UNPACKED_BYTES"`
}

type ServerConfig struct {
	Addr             string `yaml:"addr" envconfig:"ADDR"`
	DataDir          string `yaml:"data_dir" envconfig:"DATA_DIR"`
	DisableDB        bool   `yaml:"disable_db" envconfig:"DISABLE_DB"`
	ArchiveDownloads bool   `yaml:"archive_downloads" envconfig:"ARCHIVE_DOWNLOADS"`
}

// EnvPrefix is prepended to every environment override, e.g. RO_DEBOUNCE_MS.
const EnvPrefix = "RO"

func Defaults() Config {
	return Config{
		Autosave: AutosaveConfig{DebounceMs: 500},
		Codec:    CodecConfig{Alphabet: "url"},
		Engine:   EngineConfig{MaxUnpackedBytes: 1 << 20},
		Server: ServerConfig{
			Addr:    ":8080",
			DataDir: "./data",
		},
	}
}

// Load reads path (if non-empty) over the defaults, then applies RO_*
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("autosave.yaml: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("autosave.yaml: %w", err)
	}
	return cfg, nil
}

// envconfig only overwrites fields whose variables are set, so the yaml
// values survive when the environment is silent.
func applyEnv(cfg *Config) error {
	for _, section := range []any{&cfg.Autosave, &cfg.Codec, &cfg.Engine, &cfg.Server} {
		if err := envconfig.Process(EnvPrefix, section); err != nil {
			return fmt.Errorf("env overrides: %w", err)
		}
	}
	return nil
}

func (c *Config) Normalize() {
	c.Codec.Alphabet = strings.ToLower(strings.TrimSpace(c.Codec.Alphabet))
	if c.Codec.Alphabet == "" {
		c.Codec.Alphabet = "url"
	}
	if c.Autosave.DebounceMs == 0 {
		c.Autosave.DebounceMs = Defaults().Autosave.DebounceMs
	}
	if c.Engine.MaxUnpackedBytes == 0 {
		c.Engine.MaxUnpackedBytes = Defaults().Engine.MaxUnpackedBytes
	}
	c.Server.Addr = strings.TrimSpace(c.Server.Addr)
	c.Server.DataDir = strings.TrimSpace(c.Server.DataDir)
}

func (c Config) Validate() error {
	if c.Autosave.DebounceMs < 0 {
		return fmt.Errorf("autosave.debounce_ms must be >= 0, got %d", c.Autosave.DebounceMs)
	}
	if _, err := savecodec.ForAlphabet(c.Codec.Alphabet); err != nil {
		return fmt.Errorf("codec.alphabet: %w", err)
	}
	if c.Engine.MaxUnpackedBytes < 0 {
		return fmt.Errorf("engine.max_unpacked_bytes must be >= 0, got %d", c.Engine.MaxUnpackedBytes)
	}
	return nil
}

func (c Config) Debounce() time.Duration {
	return time.Duration(c.Autosave.DebounceMs) * time.Millisecond
}

// TokenCodec returns the codec named by codec.alphabet. Call after Validate.
func (c Config) TokenCodec() savecodec.Codec {
	codec, err := savecodec.ForAlphabet(c.Codec.Alphabet)
	if err != nil {
		return savecodec.URL
	}
	return codec
}
