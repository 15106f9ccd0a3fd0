package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zeusync/courtsync/internal/core/physics"
	"github.com/zeusync/courtsync/internal/core/replication"
	"github.com/zeusync/courtsync/internal/game/scoring"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, time.Second/72, cfg.FixedStep())
	require.Equal(t, 7, cfg.Score().WinningScore)
	require.Equal(t, physics.DefaultThrowConfig(), cfg.Interactable().Throw)
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "default.yaml"))
	require.NoError(t, err)

	require.Equal(t, TransportWebSocket, cfg.Network.Transport)
	require.Equal(t, 47777, cfg.Discovery.Port)
	require.Equal(t, 100*time.Millisecond, cfg.Physics.Smoothing)
	require.Equal(t, 1.25, cfg.Physics.StrongMultiplier)

	rules := cfg.Scoring()
	require.Equal(t, scoring.OpponentHalf, rules.Bounce)
	require.Equal(t, scoring.ServeLoser, rules.Serve)
	require.Equal(t, &physics.Vec3{X: 10, Y: 2}, rules.RedSpawn)
	require.Equal(t, physics.Vec3{X: -70, Y: 5}, rules.ButtonRespawn)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	cfg, err := LoadYAML(strings.NewReader(`
network:
  transport: quic
  write_policy: redirect
game:
  winning_score: 3
  bounce_policy: uniform
  serve: winner
physics:
  throw_gain: 15
  ownership_max_timeout: 2s
`))
	require.NoError(t, err)
	require.Equal(t, TransportQUIC, cfg.Network.Transport)
	require.Equal(t, replication.Redirect, cfg.WritePolicy())
	require.Equal(t, 3, cfg.Score().WinningScore)
	require.Equal(t, scoring.Uniform, cfg.Scoring().Bounce)
	require.Equal(t, scoring.ServeWinner, cfg.Scoring().Serve)
	require.Equal(t, 15.0, cfg.Interactable().Throw.Gain)
	require.Equal(t, 80.0, cfg.Interactable().Throw.MaxSpeed, "untouched keys keep defaults")
	require.Equal(t, 2*time.Second, cfg.Ownership().MaxTimeout)
	require.Nil(t, cfg.Scoring().BlueSpawn)
}

func TestLoadYAMLEmpty(t *testing.T) {
	cfg, err := LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadYAMLRejectsUnknownKeys(t *testing.T) {
	_, err := LoadYAML(strings.NewReader("game:\n  winnning_score: 3\n"))
	require.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Network.Transport = "carrier-pigeon"
	cfg.Network.WritePolicy = "ignore"
	cfg.Game.WinningScore = 0
	cfg.Game.BouncePolicy = "sideways"
	cfg.Physics.MinSpeed = 100

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"network.transport",
		"network.write_policy",
		"game.winning_score",
		"game.bounce_policy",
		"min_throw_speed",
	} {
		require.Contains(t, err.Error(), want)
	}
	require.ErrorIs(t, err, replication.ErrInvalidPolicy)
}
