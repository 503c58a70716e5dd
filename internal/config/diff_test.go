package config_test

import (
	"slices"
	"testing"

	"github.com/MrWong99/reportfix/internal/config"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		mutate       func(c *config.Config)
		wantLevel    bool
		wantSections []string
	}{
		{
			name:   "identical",
			mutate: func(*config.Config) {},
		},
		{
			name:      "log level only",
			mutate:    func(c *config.Config) { c.Server.LogLevel = config.LogWarn },
			wantLevel: true,
		},
		{
			name:         "listen address needs restart",
			mutate:       func(c *config.Config) { c.Server.ListenAddr = ":1" },
			wantSections: []string{"server"},
		},
		{
			name: "catalogs",
			mutate: func(c *config.Config) {
				off := false
				c.CorrectionTypes[0].Enabled = &off
				c.Models[0].Name = "renamed"
				c.Export.Formats = c.Export.Formats[:1]
			},
			wantSections: []string{"correction_types", "export", "models"},
		},
		{
			name: "audit and preview",
			mutate: func(c *config.Config) {
				c.Audit.Retention = 7
				c.Preview.HeadChars = 10
				c.Server.LogLevel = config.LogError
			},
			wantLevel:    true,
			wantSections: []string{"audit", "preview"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			old, updated := config.Default(), config.Default()
			tc.mutate(updated)

			d := config.Diff(old, updated)
			if d.LogLevelChanged != tc.wantLevel {
				t.Errorf("LogLevelChanged = %v, want %v", d.LogLevelChanged, tc.wantLevel)
			}
			if tc.wantLevel && d.NewLogLevel != updated.Server.LogLevel {
				t.Errorf("NewLogLevel = %q, want %q", d.NewLogLevel, updated.Server.LogLevel)
			}
			if !slices.Equal(d.RestartRequired, tc.wantSections) {
				t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, tc.wantSections)
			}
			if d.Empty() != (!tc.wantLevel && len(tc.wantSections) == 0) {
				t.Errorf("Empty() = %v", d.Empty())
			}
		})
	}
}
