package config

import (
	"maps"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	// LogLevelChanged is applied live through the process log level.
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// InterpreterChanged means the menu, substitutions, phonetic threshold
	// or extraction settings differ. A new interpreter is swapped in live.
	InterpreterChanged bool

	// ClassifierChanged means the confirmation vocabulary or cutoff differ.
	ClassifierChanged bool

	// RestartRequired lists changed sections that only take effect after a
	// restart, e.g. "server.listen_addr".
	RestartRequired []string
}

// Empty reports whether d records no change at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.InterpreterChanged && !d.ClassifierChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !menuEqual(old.Menu, new.Menu) ||
		old.Matching.PhoneticThreshold != new.Matching.PhoneticThreshold ||
		old.Extraction != new.Extraction {
		d.InterpreterChanged = true
	}

	if old.Matching.ConfirmCutoff != new.Matching.ConfirmCutoff ||
		!slices.Equal(old.Matching.YesWords, new.Matching.YesWords) ||
		!slices.Equal(old.Matching.NoWords, new.Matching.NoWords) {
		d.ClassifierChanged = true
	}

	restart := func(section string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, section)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("providers", !reflect.DeepEqual(old.Providers, new.Providers))
	restart("sessions", old.Sessions != new.Sessions)
	restart("dialog", old.Dialog != new.Dialog)
	restart("twilio", old.Twilio != new.Twilio)
	restart("orderlog", old.OrderLog != new.OrderLog)
	restart("menu.shop_name", old.Menu.ShopName != new.Menu.ShopName)
	restart("menu.currency", old.Menu.Currency != new.Menu.Currency)

	return d
}

func menuEqual(a, b MenuConfig) bool {
	return maps.Equal(a.Items, b.Items) &&
		maps.Equal(a.Substitutions, b.Substitutions) &&
		maps.EqualFunc(a.Aliases, b.Aliases, slices.Equal[[]string])
}
