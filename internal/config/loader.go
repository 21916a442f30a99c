package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/callorder/internal/confirm"
	"github.com/MrWong99/callorder/internal/menu"
	"github.com/MrWong99/callorder/internal/normalize"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":      {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"notifier": {"log", "twilio"},
}

// envRef matches ${NAME} references.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadEnv loads KEY=value pairs from the dotenv files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: load env %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${NAME} environment
// references, applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	raw = expandEnv(raw)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv replaces ${NAME} with the value of the environment variable NAME.
// Unset variables expand to the empty string.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// ApplyDefaults fills unset fields of cfg with their defaults.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, ":8080")
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.Server.ShutdownTimeout, 10*time.Second)
	setDefault(&cfg.Providers.Notifier.Name, "log")

	setDefault(&cfg.Menu.ShopName, "our shop")
	setDefault(&cfg.Menu.Currency, "£")
	if len(cfg.Menu.Items) == 0 {
		cfg.Menu.Items = make(map[string]string)
		for name, price := range menu.DefaultPrices() {
			cfg.Menu.Items[name] = price.StringFixed(2)
		}
		if cfg.Menu.Aliases == nil {
			cfg.Menu.Aliases = menu.DefaultAliases()
		}
	}
	if cfg.Menu.Substitutions == nil {
		cfg.Menu.Substitutions = normalize.DefaultSubstitutions()
	}

	setDefault(&cfg.Matching.PhoneticThreshold, 0.6)
	setDefault(&cfg.Matching.ConfirmCutoff, 0.7)
	setDefault(&cfg.Extraction.Timeout, 8*time.Second)
	setDefault(&cfg.Sessions.TTL, 10*time.Minute)
	setDefault(&cfg.Sessions.ReapInterval, time.Minute)
	setDefault(&cfg.Sessions.Shards, 32)
	setDefault(&cfg.Dialog.MaxConfirmAttempts, 2)
	setDefault(&cfg.Dialog.NotifyTimeout, 10*time.Second)
	setDefault(&cfg.Twilio.Voice, "alice")
	setDefault(&cfg.Twilio.OrderTimeout, 4*time.Second)
	setDefault(&cfg.Twilio.ConfirmTimeout, 5*time.Second)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}

	// Providers
	validateProviderName("llm", cfg.Providers.LLM.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	if len(cfg.Providers.LLMFallbacks) > 0 && cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm_fallbacks requires providers.llm"))
	}
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; orders are matched locally only")
	}
	validateProviderName("notifier", cfg.Providers.Notifier.Name)
	if cfg.Providers.Notifier.Name == "twilio" {
		n := cfg.Providers.Notifier
		if n.OptionString("from") == "" || n.OptionString("to") == "" {
			errs = append(errs, errors.New(`providers.notifier: twilio requires options "from" and "to"`))
		}
		if cfg.Twilio.AccountSID == "" || cfg.Twilio.AuthToken == "" {
			errs = append(errs, errors.New("providers.notifier: twilio requires twilio.account_sid and twilio.auth_token"))
		}
	}

	// Menu
	if _, _, err := cfg.Menu.Build(); err != nil {
		errs = append(errs, fmt.Errorf("menu: %w", err))
	}
	if _, err := normalize.New(cfg.Menu.Substitutions); err != nil {
		errs = append(errs, fmt.Errorf("menu.substitutions: %w", err))
	}

	// Matching
	if !inUnitRange(cfg.Matching.PhoneticThreshold) {
		errs = append(errs, fmt.Errorf("matching.phonetic_threshold %.2f is out of range (0, 1]", cfg.Matching.PhoneticThreshold))
	}
	if !inUnitRange(cfg.Matching.ConfirmCutoff) {
		errs = append(errs, fmt.Errorf("matching.confirm_cutoff %.2f is out of range (0, 1]", cfg.Matching.ConfirmCutoff))
	} else if _, err := cfg.Matching.Classifier(); err != nil {
		errs = append(errs, fmt.Errorf("matching: %w", err))
	}

	// Extraction
	if cfg.Extraction.Timeout < 0 {
		errs = append(errs, errors.New("extraction.timeout must not be negative"))
	}
	if cfg.Extraction.CacheSize < 0 {
		errs = append(errs, errors.New("extraction.cache_size must not be negative"))
	}
	if cfg.Extraction.Temperature < 0 || cfg.Extraction.Temperature > 2 {
		errs = append(errs, fmt.Errorf("extraction.temperature %.2f is out of range [0, 2]", cfg.Extraction.Temperature))
	}

	// Sessions
	if cfg.Sessions.TTL < 0 || cfg.Sessions.ReapInterval < 0 {
		errs = append(errs, errors.New("sessions.ttl and sessions.reap_interval must not be negative"))
	}
	if cfg.Sessions.Shards < 0 {
		errs = append(errs, errors.New("sessions.shards must not be negative"))
	}

	// Dialog
	if cfg.Dialog.MaxConfirmAttempts < 0 {
		errs = append(errs, errors.New("dialog.max_confirm_attempts must not be negative"))
	}

	// Twilio
	if cfg.Twilio.ValidateSignatures && cfg.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("twilio.validate_signatures requires twilio.auth_token"))
	}
	if cfg.Twilio.OrderTimeout < 0 || cfg.Twilio.ConfirmTimeout < 0 {
		errs = append(errs, errors.New("twilio gather timeouts must not be negative"))
	}

	if cfg.OrderLog.PostgresDSN == "" {
		slog.Debug("orderlog.postgres_dsn is empty; confirmed orders are not archived")
	}

	return errors.Join(errs...)
}

// Build parses the menu into a catalog and alias table.
func (m MenuConfig) Build() (*menu.Catalog, *menu.AliasTable, error) {
	prices := make(map[string]decimal.Decimal, len(m.Items))
	var errs []error
	for name, raw := range m.Items {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("item %q: invalid price %q", name, raw))
			continue
		}
		prices[name] = p
	}
	if err := errors.Join(errs...); err != nil {
		return nil, nil, err
	}
	catalog, err := menu.NewCatalog(prices)
	if err != nil {
		return nil, nil, err
	}
	aliases, err := menu.NewAliasTable(catalog, m.Aliases)
	if err != nil {
		return nil, nil, err
	}
	return catalog, aliases, nil
}

// Classifier builds the confirmation classifier described by m.
func (m MatchingConfig) Classifier() (*confirm.Classifier, error) {
	yes, no := m.YesWords, m.NoWords
	if len(yes) == 0 {
		yes = confirm.DefaultYes()
	}
	if len(no) == 0 {
		no = confirm.DefaultNo()
	}
	var opts []confirm.Option
	if m.ConfirmCutoff > 0 {
		opts = append(opts, confirm.WithCutoff(m.ConfirmCutoff))
	}
	return confirm.New(yes, no, opts...)
}

func inUnitRange(f float64) bool {
	return f > 0 && f <= 1
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
