package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/callorder/internal/config"
)

func baseConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		mutate          func(*config.Config)
		wantLog         bool
		wantInterpreter bool
		wantClassifier  bool
		wantRestart     []string
	}{
		{
			name:   "identical",
			mutate: func(*config.Config) {},
		},
		{
			name:    "log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = config.LogDebug },
			wantLog: true,
		},
		{
			name:            "price change",
			mutate:          func(c *config.Config) { c.Menu.Items["coke"] = "1.50" },
			wantInterpreter: true,
		},
		{
			name:            "alias added",
			mutate:          func(c *config.Config) { c.Menu.Aliases["fanta"] = []string{"orange soda"} },
			wantInterpreter: true,
		},
		{
			name:            "phonetic threshold",
			mutate:          func(c *config.Config) { c.Matching.PhoneticThreshold = 0.8 },
			wantInterpreter: true,
		},
		{
			name:           "confirm vocabulary",
			mutate:         func(c *config.Config) { c.Matching.YesWords = []string{"aye"} },
			wantClassifier: true,
		},
		{
			name: "restart sections",
			mutate: func(c *config.Config) {
				c.Server.ListenAddr = ":9999"
				c.Providers.LLM.Name = "openai"
				c.Twilio.Voice = "Polly.Amy"
			},
			wantRestart: []string{"server.listen_addr", "providers", "twilio"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, updated := baseConfig(t), baseConfig(t)
			tc.mutate(updated)

			d := config.Diff(old, updated)
			if d.LogLevelChanged != tc.wantLog {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tc.wantLog)
			}
			if d.InterpreterChanged != tc.wantInterpreter {
				t.Errorf("InterpreterChanged = %v, want %v", d.InterpreterChanged, tc.wantInterpreter)
			}
			if d.ClassifierChanged != tc.wantClassifier {
				t.Errorf("ClassifierChanged = %v, want %v", d.ClassifierChanged, tc.wantClassifier)
			}
			if !slices.Equal(d.RestartRequired, tc.wantRestart) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tc.wantRestart)
			}
			wantEmpty := !tc.wantLog && !tc.wantInterpreter && !tc.wantClassifier && len(tc.wantRestart) == 0
			if d.Empty() != wantEmpty {
				t.Errorf("Empty() = %v, want %v", d.Empty(), wantEmpty)
			}
		})
	}
}
