// Package config loads the peer configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/courtsync/internal/core/ownership"
	"github.com/zeusync/courtsync/internal/core/physics"
	"github.com/zeusync/courtsync/internal/core/protocol/transport"
	"github.com/zeusync/courtsync/internal/core/replication"
	"github.com/zeusync/courtsync/internal/game/score"
	"github.com/zeusync/courtsync/internal/game/scoring"
)

// Transports understood by network.transport.
const (
	TransportWebSocket = "websocket"
	TransportQUIC      = "quic"
	TransportLocal     = "local"
)

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Network   NetworkConfig   `yaml:"network"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Physics   PhysicsConfig   `yaml:"physics"`
	Game      GameConfig      `yaml:"game"`
	Prefs     PrefsConfig     `yaml:"prefs"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type NetworkConfig struct {
	Transport    string        `yaml:"transport"`
	Listen       string        `yaml:"listen"`
	Host         string        `yaml:"host"`
	InboxSize    int           `yaml:"inbox_size"`
	PingInterval time.Duration `yaml:"ping_interval"`
	WritePolicy  string        `yaml:"write_policy"`
}

type DiscoveryConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Port     int           `yaml:"port"`
	Payload  string        `yaml:"payload"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

type PhysicsConfig struct {
	FixedRate           int           `yaml:"fixed_rate"`
	FrameRate           int           `yaml:"frame_rate"`
	HistoryFrames       int           `yaml:"history_frames"`
	MinExchangeSpeed    float64       `yaml:"min_exchange_speed"`
	SpawnLocked         bool          `yaml:"spawn_locked"`
	Smoothing           time.Duration `yaml:"smoothing"`
	OwnershipMinTimeout time.Duration `yaml:"ownership_min_timeout"`
	OwnershipMaxTimeout time.Duration `yaml:"ownership_max_timeout"`

	physics.ThrowConfig `yaml:",inline"`
}

type GameConfig struct {
	WinningScore  int           `yaml:"winning_score"`
	MaxBounces    int           `yaml:"max_bounces"`
	BouncePolicy  string        `yaml:"bounce_policy"`
	Serve         string        `yaml:"serve"`
	BlueSpawn     *physics.Vec3 `yaml:"blue_spawn"`
	RedSpawn      *physics.Vec3 `yaml:"red_spawn"`
	DefaultSpawn  physics.Vec3  `yaml:"default_spawn"`
	ButtonRespawn physics.Vec3  `yaml:"button_respawn"`
}

type PrefsConfig struct {
	// App names the gdata storage directory. Empty keeps preferences in memory.
	App string `yaml:"app"`
}

func Default() Config {
	phys := physics.DefaultConfig()
	rules := scoring.DefaultConfig()
	return Config{
		Log: LogConfig{Level: "info"},
		Network: NetworkConfig{
			Transport:    TransportWebSocket,
			Listen:       ":7777",
			InboxSize:    transport.DefaultOptions().InboxSize,
			PingInterval: transport.DefaultOptions().PingInterval,
			WritePolicy:  replication.Reject.String(),
		},
		Discovery: DiscoveryConfig{
			Enabled:  true,
			Port:     47777,
			Payload:  "NGO_HOST",
			Interval: time.Second,
			Timeout:  10 * time.Second,
		},
		Physics: PhysicsConfig{
			FixedRate:           72,
			FrameRate:           90,
			HistoryFrames:       phys.HistoryFrames,
			MinExchangeSpeed:    phys.MinExchangeSpeed,
			SpawnLocked:         phys.SpawnLocked,
			Smoothing:           phys.Smoothing,
			OwnershipMinTimeout: ownership.DefaultMinTimeout,
			OwnershipMaxTimeout: ownership.DefaultMaxTimeout,
			ThrowConfig:         phys.Throw,
		},
		Game: GameConfig{
			WinningScore:  score.DefaultWinningScore,
			MaxBounces:    rules.MaxBounces,
			BouncePolicy:  rules.Bounce.String(),
			Serve:         rules.Serve.String(),
			DefaultSpawn:  rules.DefaultSpawn,
			ButtonRespawn: rules.ButtonRespawn,
		},
		Prefs: PrefsConfig{App: "courtsync"},
	}
}

// Load reads path on top of the defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return LoadYAML(f)
}

// LoadYAML decodes r on top of the defaults and validates the result.
// Keys missing from r keep their default value.
func LoadYAML(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Network.Transport {
	case TransportWebSocket, TransportQUIC, TransportLocal:
	default:
		errs = append(errs, fmt.Errorf("network.transport: unknown transport %q", c.Network.Transport))
	}
	if _, err := replication.ParseWritePolicy(c.Network.WritePolicy); err != nil {
		errs = append(errs, fmt.Errorf("network.write_policy: %w", err))
	}
	check(c.Network.InboxSize > 0, "network.inbox_size must be positive")
	check(c.Discovery.Port > 0 && c.Discovery.Port < 1<<16, "discovery.port out of range: %d", c.Discovery.Port)
	check(!c.Discovery.Enabled || c.Discovery.Payload != "", "discovery.payload must not be empty")

	p := c.Physics
	check(p.FixedRate > 0, "physics.fixed_rate must be positive")
	check(p.FrameRate > 0, "physics.frame_rate must be positive")
	check(p.HistoryFrames > 0, "physics.history_frames must be positive")
	check(p.MinSpeed > 0 && p.MinSpeed <= p.MaxSpeed, "physics: min_throw_speed must be in (0, max_throw_speed]")
	check(p.StrongMultiplier >= 1, "physics.strong_throw_multiplier must be at least 1")
	check(p.OwnershipMinTimeout > 0 && p.OwnershipMinTimeout <= p.OwnershipMaxTimeout,
		"physics: ownership_min_timeout must be in (0, ownership_max_timeout]")

	g := c.Game
	check(g.WinningScore > 0, "game.winning_score must be positive")
	check(g.MaxBounces >= 0, "game.max_bounces must not be negative")
	if _, err := scoring.ParseBouncePolicy(g.BouncePolicy); err != nil {
		errs = append(errs, fmt.Errorf("game.bounce_policy: %w", err))
	}
	if _, err := scoring.ParseServePolicy(g.Serve); err != nil {
		errs = append(errs, fmt.Errorf("game.serve: %w", err))
	}
	return errors.Join(errs...)
}

// FixedStep is the duration of one physics step.
func (c Config) FixedStep() time.Duration { return time.Second / time.Duration(c.Physics.FixedRate) }

// FrameStep is the duration of one rendered frame.
func (c Config) FrameStep() time.Duration { return time.Second / time.Duration(c.Physics.FrameRate) }

func (c Config) TransportOptions() transport.Options {
	return transport.Options{InboxSize: c.Network.InboxSize, PingInterval: c.Network.PingInterval}
}

func (c Config) WritePolicy() replication.WritePolicy {
	p, _ := replication.ParseWritePolicy(c.Network.WritePolicy)
	return p
}

func (c Config) Interactable() physics.Config {
	cfg := physics.DefaultConfig()
	cfg.HistoryFrames = c.Physics.HistoryFrames
	cfg.Throw = c.Physics.ThrowConfig
	cfg.MinExchangeSpeed = c.Physics.MinExchangeSpeed
	cfg.SpawnLocked = c.Physics.SpawnLocked
	cfg.Smoothing = c.Physics.Smoothing
	return cfg
}

func (c Config) Ownership() ownership.Options {
	opts := ownership.DefaultOptions()
	opts.MinTimeout = c.Physics.OwnershipMinTimeout
	opts.MaxTimeout = c.Physics.OwnershipMaxTimeout
	return opts
}

func (c Config) Scoring() scoring.Config {
	cfg := scoring.DefaultConfig()
	cfg.MaxBounces = c.Game.MaxBounces
	cfg.Bounce, _ = scoring.ParseBouncePolicy(c.Game.BouncePolicy)
	cfg.Serve, _ = scoring.ParseServePolicy(c.Game.Serve)
	cfg.BlueSpawn = c.Game.BlueSpawn
	cfg.RedSpawn = c.Game.RedSpawn
	cfg.DefaultSpawn = c.Game.DefaultSpawn
	cfg.ButtonRespawn = c.Game.ButtonRespawn
	return cfg
}

func (c Config) Score() score.Config {
	return score.Config{WinningScore: c.Game.WinningScore}
}
