package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/callorder/internal/config"
)

const fullYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
providers:
  llm:
    name: openai
    api_key: ${CALLORDER_TEST_KEY}
    model: gpt-4o-mini
  llm_fallbacks:
    - name: anthropic
      model: claude-3-5-haiku-latest
  notifier:
    name: twilio
    options:
      from: "whatsapp:+14155238886"
      to: "whatsapp:+447700900123"
menu:
  shop_name: Baguette Bar
  currency: "€"
  items:
    tuna baguette: "4.99"
    coke: "1.20"
  aliases:
    coke: [cola]
  substitutions:
    bagette: baguette
matching:
  phonetic_threshold: 0.65
  confirm_cutoff: 0.8
extraction:
  timeout: 3s
  cache_size: 128
sessions:
  ttl: 5m
dialog:
  max_confirm_attempts: 3
  messages:
    welcome: "Hi, this is {shop}."
twilio:
  account_sid: AC123
  auth_token: secret
  validate_signatures: true
  public_url: https://orders.example.com
orderlog:
  postgres_dsn: postgres://localhost/callorder
`

func TestLoadFromReader_Full(t *testing.T) {
	t.Setenv("CALLORDER_TEST_KEY", "sk-test")

	cfg, err := config.LoadFromReader(strings.NewReader(fullYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Providers.LLM.APIKey != "sk-test" {
		t.Errorf("api_key = %q, want expanded env value", cfg.Providers.LLM.APIKey)
	}
	if got := cfg.Providers.Notifier.OptionString("to"); got != "whatsapp:+447700900123" {
		t.Errorf("notifier to = %q", got)
	}
	if cfg.Menu.Items["coke"] != "1.20" {
		t.Errorf("coke price = %q, want 1.20", cfg.Menu.Items["coke"])
	}
	if cfg.Extraction.Timeout != 3*time.Second || cfg.Extraction.CacheSize != 128 {
		t.Errorf("extraction = %+v", cfg.Extraction)
	}
	if cfg.Sessions.TTL != 5*time.Minute || cfg.Sessions.ReapInterval != time.Minute {
		t.Errorf("sessions = %+v", cfg.Sessions)
	}
	if cfg.Dialog.Messages.Welcome != "Hi, this is {shop}." {
		t.Errorf("welcome = %q", cfg.Dialog.Messages.Welcome)
	}

	catalog, aliases, err := cfg.Menu.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if catalog.Len() != 2 {
		t.Errorf("catalog size = %d, want 2", catalog.Len())
	}
	if name, ok := aliases.Resolve("Cola"); !ok || name != "coke" {
		t.Errorf("Resolve(Cola) = %q, %v", name, ok)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"listen_addr", cfg.Server.ListenAddr, ":8080"},
		{"log_level", cfg.Server.LogLevel, config.LogInfo},
		{"notifier", cfg.Providers.Notifier.Name, "log"},
		{"currency", cfg.Menu.Currency, "£"},
		{"phonetic_threshold", cfg.Matching.PhoneticThreshold, 0.6},
		{"confirm_cutoff", cfg.Matching.ConfirmCutoff, 0.7},
		{"extraction.timeout", cfg.Extraction.Timeout, 8 * time.Second},
		{"sessions.ttl", cfg.Sessions.TTL, 10 * time.Minute},
		{"sessions.shards", cfg.Sessions.Shards, 32},
		{"max_confirm_attempts", cfg.Dialog.MaxConfirmAttempts, 2},
		{"voice", cfg.Twilio.Voice, "alice"},
		{"order_timeout", cfg.Twilio.OrderTimeout, 4 * time.Second},
		{"confirm_timeout", cfg.Twilio.ConfirmTimeout, 5 * time.Second},
		{"tuna price", cfg.Menu.Items["tuna baguette"], "4.99"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if cfg.Menu.Substitutions["bagette"] != "baguette" {
		t.Error("default substitutions not applied")
	}
	if len(cfg.Menu.Aliases["fries"]) == 0 {
		t.Error("default aliases not applied")
	}
}

func TestLoadFromReader_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "unknown field",
			yaml:    "server:\n  port: 80\n",
			wantErr: "field port not found",
		},
		{
			name:    "bad log level",
			yaml:    "server:\n  log_level: bananas\n",
			wantErr: "server.log_level",
		},
		{
			name:    "bad price",
			yaml:    "menu:\n  items:\n    coke: free\n",
			wantErr: `invalid price "free"`,
		},
		{
			name:    "alias for unknown item",
			yaml:    "menu:\n  items:\n    coke: \"1.20\"\n  aliases:\n    pepsi: [cola]\n",
			wantErr: "menu",
		},
		{
			name:    "threshold out of range",
			yaml:    "matching:\n  phonetic_threshold: 1.5\n",
			wantErr: "matching.phonetic_threshold",
		},
		{
			name:    "overlapping vocabularies",
			yaml:    "matching:\n  yes_words: [yes, ok]\n  no_words: [no, ok]\n",
			wantErr: "matching",
		},
		{
			name:    "fallbacks without primary",
			yaml:    "providers:\n  llm_fallbacks:\n    - name: groq\n",
			wantErr: "requires providers.llm",
		},
		{
			name:    "twilio notifier without numbers",
			yaml:    "providers:\n  notifier:\n    name: twilio\ntwilio:\n  account_sid: AC1\n  auth_token: t\n",
			wantErr: `options "from" and "to"`,
		},
		{
			name:    "signature validation without token",
			yaml:    "twilio:\n  validate_signatures: true\n",
			wantErr: "twilio.validate_signatures",
		},
		{
			name:    "negative cache size",
			yaml:    "extraction:\n  cache_size: -1\n",
			wantErr: "extraction.cache_size",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.LogLevel = "loud"
	cfg.Matching.ConfirmCutoff = 2
	cfg.Dialog.MaxConfirmAttempts = -1

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "matching.confirm_cutoff", "dialog.max_confirm_attempts"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.Load("/nonexistent/callorder.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	writeFile(t, path, "CALLORDER_TEST_DOTENV=Baguette Bar\n")
	t.Setenv("CALLORDER_TEST_DOTENV", "")
	os.Unsetenv("CALLORDER_TEST_DOTENV")

	if err := config.LoadEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	cfg, err := config.LoadFromReader(strings.NewReader("menu:\n  shop_name: ${CALLORDER_TEST_DOTENV}\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Menu.ShopName != "Baguette Bar" {
		t.Errorf("shop_name = %q, want value from .env", cfg.Menu.ShopName)
	}
}
