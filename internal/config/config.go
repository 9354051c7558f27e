package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/leofalp/devforge/providers/observability/slogobs"
)

// DefaultFile is read when no config file is given and it exists in the
// working directory.
const DefaultFile = "devforge.yaml"

// Checkpoint backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Model providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

var ErrInvalid = errors.New("invalid configuration")

// Tier configures one backing model instance.
type Tier struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
}

// Checkpoint selects and locates the checkpoint store.
type Checkpoint struct {
	Backend string `yaml:"backend"`
	// Path is the directory of the file backend or the database file of the
	// sqlite backend.
	Path  string `yaml:"path"`
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// Log configures the slog-backed observer.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the full set of devforge settings.
type Config struct {
	Primary  Tier  `yaml:"primary"`
	Fallback *Tier `yaml:"fallback"`

	Retries        int           `yaml:"retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	Temperature    float64       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`

	MaxParallel int        `yaml:"max_parallel"`
	Checkpoint  Checkpoint `yaml:"checkpoint"`
	OutputDir   string     `yaml:"output_dir"`
	Log         Log        `yaml:"log"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		Primary:     Tier{Provider: ProviderGemini, Model: "gemini-2.0-flash"},
		Retries:     3,
		RetryDelay:  2 * time.Second,
		Temperature: 0.7,
		MaxTokens:   8192,
		Checkpoint:  Checkpoint{Backend: BackendFile, Path: ".devforge/checkpoints"},
		OutputDir:   "artifacts",
		Log:         Log{Level: "info", Format: "compact"},
	}
}

type options struct {
	file     string
	envFiles []string
	lookup   func(string) (string, bool)
	skipKeys bool
}

// Option customizes Load.
type Option func(*options)

// WithFile reads path instead of DefaultFile. The file must exist.
func WithFile(path string) Option {
	return func(o *options) {
		o.file = path
	}
}

// WithEnvFiles replaces the default ".env" with files. Missing files are
// ignored.
func WithEnvFiles(files ...string) Option {
	return func(o *options) {
		o.envFiles = files
	}
}

// WithLookup replaces os.LookupEnv.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(o *options) {
		o.lookup = lookup
	}
}

// WithoutKeyCheck accepts tiers without an API key. Commands that never
// call a model use it.
func WithoutKeyCheck() Option {
	return func(o *options) {
		o.skipKeys = true
	}
}

// Load builds the configuration and validates it.
func Load(opts ...Option) (*Config, error) {
	o := options{envFiles: []string{".env"}, lookup: os.LookupEnv}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()

	path, required := o.file, true
	if path == "" {
		path, required = DefaultFile, false
	}
	if err := cfg.readFile(path, required); err != nil {
		return nil, err
	}

	dotenv, err := readEnvFiles(o.envFiles)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := o.lookup(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.validate(!o.skipKeys); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string, required bool) error {
	f, err := os.Open(path)
	if err != nil {
		if !required && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, file := range files {
		values, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		for k, v := range values {
			if _, seen := merged[k]; !seen {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

// applyEnv overrides settings with DEVFORGE_* variables and fills missing
// API keys from the vendor variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalid, key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%w: %s: %w", ErrInvalid, key, err))
				return
			}
			*dst = d
		}
	}

	str("DEVFORGE_PROVIDER", &c.Primary.Provider)
	str("DEVFORGE_MODEL", &c.Primary.Model)
	str("DEVFORGE_API_KEY", &c.Primary.APIKey)
	str("DEVFORGE_BASE_URL", &c.Primary.BaseURL)

	if v, ok := lookup("DEVFORGE_FALLBACK_PROVIDER"); ok && v != "" && c.Fallback == nil {
		c.Fallback = &Tier{}
	}
	if c.Fallback != nil {
		str("DEVFORGE_FALLBACK_PROVIDER", &c.Fallback.Provider)
		str("DEVFORGE_FALLBACK_MODEL", &c.Fallback.Model)
		str("DEVFORGE_FALLBACK_API_KEY", &c.Fallback.APIKey)
		str("DEVFORGE_FALLBACK_BASE_URL", &c.Fallback.BaseURL)
	}

	integer("DEVFORGE_RETRIES", &c.Retries)
	duration("DEVFORGE_RETRY_DELAY", &c.RetryDelay)
	duration("DEVFORGE_ATTEMPT_TIMEOUT", &c.AttemptTimeout)
	integer("DEVFORGE_MAX_TOKENS", &c.MaxTokens)
	integer("DEVFORGE_MAX_PARALLEL", &c.MaxParallel)
	str("DEVFORGE_CHECKPOINT_BACKEND", &c.Checkpoint.Backend)
	str("DEVFORGE_CHECKPOINT_PATH", &c.Checkpoint.Path)
	str("DEVFORGE_CHECKPOINT_DSN", &c.Checkpoint.DSN)
	str("DEVFORGE_CHECKPOINT_TABLE", &c.Checkpoint.Table)
	str("DEVFORGE_OUTPUT_DIR", &c.OutputDir)
	str("DEVFORGE_LOG_LEVEL", &c.Log.Level)
	str("DEVFORGE_LOG_FORMAT", &c.Log.Format)

	fillKey(&c.Primary, lookup)
	if c.Fallback != nil {
		fillKey(c.Fallback, lookup)
	}
	return errors.Join(errs...)
}

func fillKey(t *Tier, lookup func(string) (string, bool)) {
	if t.APIKey != "" {
		return
	}
	var keys []string
	switch t.Provider {
	case ProviderGemini:
		keys = []string{"GOOGLE_API_KEY", "GEMINI_API_KEY"}
	case ProviderOpenAI:
		keys = []string{"OPENAI_API_KEY"}
	}
	for _, key := range keys {
		if v, ok := lookup(key); ok && v != "" {
			t.APIKey = v
			return
		}
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(requireKeys bool) error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	checkTier := func(name string, t Tier) {
		switch t.Provider {
		case ProviderGemini, ProviderOpenAI:
		default:
			invalid("%s tier: unknown provider %q", name, t.Provider)
		}
		if requireKeys && t.APIKey == "" {
			invalid("%s tier: no API key (set DEVFORGE_API_KEY or the provider's key variable)", name)
		}
	}
	checkTier("primary", c.Primary)
	if c.Fallback != nil {
		checkTier("fallback", *c.Fallback)
	}

	if c.Retries < 0 {
		invalid("retries must not be negative, got %d", c.Retries)
	}
	if c.RetryDelay < 0 || c.AttemptTimeout < 0 {
		invalid("retry_delay and attempt_timeout must not be negative")
	}
	if c.MaxParallel < 0 {
		invalid("max_parallel must not be negative, got %d", c.MaxParallel)
	}
	if c.MaxTokens < 0 {
		invalid("max_tokens must not be negative, got %d", c.MaxTokens)
	}

	switch c.Checkpoint.Backend {
	case BackendMemory:
	case BackendFile, BackendSQLite:
		if c.Checkpoint.Path == "" {
			invalid("checkpoint backend %q needs a path", c.Checkpoint.Backend)
		}
	case BackendPostgres:
		if c.Checkpoint.DSN == "" {
			invalid("checkpoint backend %q needs a dsn", c.Checkpoint.Backend)
		}
	default:
		invalid("unknown checkpoint backend %q", c.Checkpoint.Backend)
	}

	if _, ok := slogobs.ParseLogLevel(c.Log.Level); !ok {
		invalid("unknown log level %q", c.Log.Level)
	}
	if _, ok := slogobs.ParseFormat(c.Log.Format); !ok {
		invalid("unknown log format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}
