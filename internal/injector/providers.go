// Package injector assembles a peer from its configuration.
package injector

import (
	"github.com/google/wire"

	"github.com/zeusync/courtsync/internal/config"
	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/game/team"
	"github.com/zeusync/courtsync/internal/prefs"
	"github.com/zeusync/courtsync/internal/session"
)

// ConfigPath is the YAML file to load; empty uses the built-in defaults.
type ConfigPath string

var ProviderSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideSessionOptions,
	session.New,
)

func ProvideConfig(path ConfigPath) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(string(path))
}

func ProvideLogger(cfg config.Config) log.Log {
	return log.New(log.ParseLevel(cfg.Log.Level))
}

// ProvidePrefs opens the on-disk preferences, falling back to memory when
// they are disabled or unavailable.
func ProvidePrefs(cfg config.Config, logger log.Log) prefs.Store {
	if cfg.Prefs.App == "" {
		return prefs.NewMemory()
	}
	store, err := prefs.OpenDisk(cfg.Prefs.App, logger)
	if err != nil {
		logger.Warn("Preferences unavailable, keeping them in memory", log.Error(err))
		return prefs.NewMemory()
	}
	return store
}

func ProvideSessionOptions(cfg config.Config, color team.Color, logger log.Log) session.Options {
	return session.Options{Config: cfg, Color: color, Logger: logger}
}

// AssignColor picks the local side: the stored preference when set,
// otherwise Blue for the host and Red for clients. Spectators have none.
func AssignColor(store prefs.Store, host bool) team.Color {
	if prefs.IsSpectator(store) {
		return team.None
	}
	if c := store.PlayerColor(); c.Valid() {
		return c
	}
	if host {
		return team.Blue
	}
	return team.Red
}
