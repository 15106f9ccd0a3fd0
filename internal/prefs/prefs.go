// Package prefs persists per-device player preferences: the team colour the
// player picked and whether the device runs as a VR player or a spectator.
package prefs

import (
	"fmt"
	"sync"

	"github.com/quasilyte/gdata"

	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/game/team"
)

const (
	KeyPlayerColor = "PlayerColor"
	KeyRunMode     = "RunMode"
)

type RunMode string

const (
	ModeVR        RunMode = "VR"
	ModeSpectator RunMode = "Spectator"
)

func ParseRunMode(s string) (RunMode, error) {
	switch RunMode(s) {
	case ModeVR, "":
		return ModeVR, nil
	case ModeSpectator:
		return ModeSpectator, nil
	default:
		return ModeVR, fmt.Errorf("unknown run mode %q", s)
	}
}

// Store is a key-value view of the preferences.
type Store interface {
	PlayerColor() team.Color
	SetPlayerColor(c team.Color) error
	RunMode() RunMode
	SetRunMode(m RunMode) error
}

// IsSpectator reports whether s selects spectator mode.
func IsSpectator(s Store) bool { return s.RunMode() == ModeSpectator }

// Memory keeps preferences for the lifetime of the process.
type Memory struct {
	mu    sync.RWMutex
	color team.Color
	mode  RunMode
}

func NewMemory() *Memory {
	return &Memory{color: team.None, mode: ModeVR}
}

func (m *Memory) PlayerColor() team.Color {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.color
}

func (m *Memory) SetPlayerColor(c team.Color) error {
	m.mu.Lock()
	m.color = c
	m.mu.Unlock()
	return nil
}

func (m *Memory) RunMode() RunMode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

func (m *Memory) SetRunMode(mode RunMode) error {
	m.mu.Lock()
	m.mode = mode
	m.mu.Unlock()
	return nil
}

// items is the subset of *gdata.Manager used by Disk.
type items interface {
	LoadItem(key string) ([]byte, error)
	SaveItem(key string, data []byte) error
}

// Disk stores preferences with gdata under the per-user data directory.
// Unreadable or unknown values fall back to the defaults.
type Disk struct {
	items  items
	logger log.Log
}

func OpenDisk(app string, logger log.Log) (*Disk, error) {
	m, err := gdata.Open(gdata.Config{AppName: app})
	if err != nil {
		return nil, fmt.Errorf("open preferences: %w", err)
	}
	return newDisk(m, logger), nil
}

func newDisk(it items, logger log.Log) *Disk {
	if logger == nil {
		logger = log.Provide()
	}
	return &Disk{items: it, logger: logger.With(log.String("component", "prefs"))}
}

func (d *Disk) load(key string) string {
	data, err := d.items.LoadItem(key)
	if err != nil {
		d.logger.Warn("Could not load preference", log.String("key", key), log.Error(err))
		return ""
	}
	return string(data)
}

func (d *Disk) PlayerColor() team.Color {
	c, err := team.Parse(d.load(KeyPlayerColor))
	if err != nil {
		d.logger.Warn("Invalid player color preference", log.Error(err))
		return team.None
	}
	return c
}

func (d *Disk) SetPlayerColor(c team.Color) error {
	return d.items.SaveItem(KeyPlayerColor, []byte(c.String()))
}

func (d *Disk) RunMode() RunMode {
	m, err := ParseRunMode(d.load(KeyRunMode))
	if err != nil {
		d.logger.Warn("Invalid run mode preference", log.Error(err))
	}
	return m
}

func (d *Disk) SetRunMode(m RunMode) error {
	if _, err := ParseRunMode(string(m)); err != nil {
		return err
	}
	return d.items.SaveItem(KeyRunMode, []byte(m))
}
