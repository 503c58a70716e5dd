package config

import (
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only the log level is applied live; every other change is reported in
// RestartRequired so the operator can be told to restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart (e.g. "models", "audit").
	RestartRequired []string
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""

	sections := []struct {
		name     string
		old, new any
	}{
		{"server", oldServer, newServer},
		{"pipeline", old.Pipeline, new.Pipeline},
		{"correction_types", old.CorrectionTypes, new.CorrectionTypes},
		{"terminology", old.Terminology, new.Terminology},
		{"accuracy", old.Accuracy, new.Accuracy},
		{"models", old.Models, new.Models},
		{"knowledge_sources", old.KnowledgeSources, new.KnowledgeSources},
		{"retrieval", old.Retrieval, new.Retrieval},
		{"quality", old.Quality, new.Quality},
		{"audit", old.Audit, new.Audit},
		{"preview", old.Preview, new.Preview},
		{"export", old.Export, new.Export},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.old, s.new) {
			d.RestartRequired = append(d.RestartRequired, s.name)
		}
	}
	slices.Sort(d.RestartRequired)
	return d
}
