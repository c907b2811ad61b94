package hxrender

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pthm/hxrender/lib/store"
)

// Mutable store kinds accepted in Config.Store.Mutable.
const (
	MutableFS      = "fs"
	MutableLevelDB = "leveldb"
	MutableMemory  = "memory"
)

// Config is the on-disk configuration read from hxrender.yaml.
type Config struct {
	// Dist is the directory build output is written to.
	Dist string `yaml:"dist"`

	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Locales struct {
		Default string   `yaml:"default"`
		Others  []string `yaml:"others"`
	} `yaml:"locales"`

	Store struct {
		Mutable string `yaml:"mutable"`
	} `yaml:"store"`

	Build struct {
		Concurrency int `yaml:"concurrency"`
	} `yaml:"build"`

	Cache struct {
		// MaxPages bounds the client page state cache (see pss.FromConfig).
		MaxPages int `yaml:"maxPages"`
	} `yaml:"cache"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads and validates a config file. A missing file yields the
// defaults.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Dist == "" {
		c.Dist = "dist"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Store.Mutable == "" {
		c.Store.Mutable = MutableFS
	}
	if c.Cache.MaxPages == 0 {
		c.Cache.MaxPages = 25
	}
}

func (c *Config) validate() error {
	switch c.Store.Mutable {
	case MutableFS, MutableLevelDB, MutableMemory:
	default:
		return fmt.Errorf("store.mutable: unknown kind %q", c.Store.Mutable)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: out of range: %d", c.Server.Port)
	}
	if c.Build.Concurrency < 0 {
		return fmt.Errorf("build.concurrency: negative")
	}
	if c.Cache.MaxPages < 0 {
		return fmt.Errorf("cache.maxPages: negative")
	}
	for i, o := range c.Locales.Others {
		if strings.TrimSpace(o) == "" {
			return fmt.Errorf("locales.others[%d]: empty", i)
		}
	}
	if len(c.Locales.Others) > 0 && c.Locales.Default == "" {
		return fmt.Errorf("locales.default is required with locales.others")
	}
	return nil
}

// AppLocales converts the locale section to Locales. An empty default
// becomes the fallback locale.
func (c Config) AppLocales() Locales {
	return Locales{
		Default:   c.Locales.Default,
		Others:    c.Locales.Others,
		UsingI18n: len(c.Locales.Others) > 0,
	}.normalize()
}

// OpenStores opens the immutable and mutable stores under Dist. The
// returned close function releases the mutable store.
func (c Config) OpenStores() (immutable, mutable store.Store, closeFn func() error, err error) {
	immutable = store.NewFS(filepath.Join(c.Dist, "immutable"))
	noop := func() error { return nil }
	switch c.Store.Mutable {
	case MutableMemory:
		return immutable, store.NewMemory(), noop, nil
	case MutableLevelDB:
		lvl, err := store.OpenLevel(filepath.Join(c.Dist, "mutable.db"))
		if err != nil {
			return nil, nil, nil, err
		}
		return immutable, lvl, lvl.Close, nil
	default:
		return immutable, store.NewFS(filepath.Join(c.Dist, "mutable")), noop, nil
	}
}
