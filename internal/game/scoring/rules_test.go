package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/physics"
	"github.com/zeusync/courtsync/internal/game/team"
)

type fakeBall struct {
	at       physics.Vec3
	owner    bool
	held     bool
	thrown   bool
	thrower  team.Color
	released int
	teleport []physics.Vec3
}

func (b *fakeBall) Position() physics.Vec3   { return b.at }
func (b *fakeBall) IsOwner() bool            { return b.owner }
func (b *fakeBall) IsThrown() bool           { return b.thrown }
func (b *fakeBall) LastThrownBy() team.Color { return b.thrower }
func (b *fakeBall) ClearThrown()             { b.thrown = false }

// ForceRelease launches a held ball the way a real release does.
func (b *fakeBall) ForceRelease() {
	b.released++
	if b.owner && b.held {
		b.held = false
		b.thrown = true
		b.thrower = team.Blue
	}
}

func (b *fakeBall) Teleport(at physics.Vec3) {
	b.teleport = append(b.teleport, at)
	b.at = at
}

type fakeScorer struct {
	points []team.Color
	err    error
}

func (s *fakeScorer) RequestPoint(c team.Color) error {
	s.points = append(s.points, c)
	return s.err
}

type fakeVisuals struct {
	colors    []RGB
	emissions []RGB
}

func (v *fakeVisuals) SetColor(c RGB)    { v.colors = append(v.colors, c) }
func (v *fakeVisuals) SetEmission(c RGB) { v.emissions = append(v.emissions, c) }

var (
	blueSpawn = physics.Vec3{X: -10, Y: 2}
	redSpawn  = physics.Vec3{X: 10, Y: 2}
)

func spawnConfig() Config {
	cfg := DefaultConfig()
	cfg.BlueSpawn = &blueSpawn
	cfg.RedSpawn = &redSpawn
	return cfg
}

func thrownBy(c team.Color, at physics.Vec3) *fakeBall {
	return &fakeBall{at: at, owner: true, thrown: true, thrower: c}
}

func TestBounceLimitAwardsPointAndRespawns(t *testing.T) {
	ball := thrownBy(team.Blue, physics.Vec3{X: 3})
	scorer := &fakeScorer{}
	rules := New(ball, scorer, &fakeVisuals{}, spawnConfig(), log.NewNop())

	rules.HandleCollision(physics.TagCourt)
	require.Equal(t, 1, rules.BounceCount())
	require.Empty(t, scorer.points)

	rules.HandleCollision(physics.TagCourt)
	require.Equal(t, []team.Color{team.Blue}, scorer.points, "ball rests on red's half")
	require.Equal(t, 0, rules.BounceCount())
	require.False(t, ball.thrown)
	require.Equal(t, 1, ball.released)
	require.Equal(t, []physics.Vec3{redSpawn}, ball.teleport, "the side that lost the point serves")
}

func TestServeWinner(t *testing.T) {
	ball := thrownBy(team.Red, physics.Vec3{X: -4})
	scorer := &fakeScorer{}
	cfg := spawnConfig()
	cfg.Serve = ServeWinner
	rules := New(ball, scorer, nil, cfg, log.NewNop())

	rules.HandleCollision(physics.TagCourt)
	rules.HandleCollision(physics.TagCourt)
	require.Equal(t, []team.Color{team.Red}, scorer.points)
	require.Equal(t, []physics.Vec3{redSpawn}, ball.teleport)
}

func TestOpponentHalfPolicy(t *testing.T) {
	ball := thrownBy(team.Blue, physics.Vec3{X: -2})
	rules := New(ball, &fakeScorer{}, nil, spawnConfig(), log.NewNop())

	rules.HandleCollision(physics.TagCourt)
	require.Equal(t, 0, rules.BounceCount(), "bounce on the thrower's own half")

	ball.at.X = 2
	rules.HandleCollision(physics.TagCourt)
	require.Equal(t, 1, rules.BounceCount())

	redBall := thrownBy(team.Red, physics.Vec3{X: 0})
	redRules := New(redBall, &fakeScorer{}, nil, spawnConfig(), log.NewNop())
	redRules.HandleCollision(physics.TagCourt)
	require.Equal(t, 0, redRules.BounceCount(), "the centre line is not blue's half for a red throw")
}

func TestUniformPolicy(t *testing.T) {
	ball := thrownBy(team.Blue, physics.Vec3{X: -2})
	cfg := spawnConfig()
	cfg.Bounce = Uniform
	rules := New(ball, &fakeScorer{}, nil, cfg, log.NewNop())

	rules.HandleCollision(physics.TagCourt)
	require.Equal(t, 1, rules.BounceCount())
}

func TestBouncesIgnoredWhenNotThrownOrNotOwner(t *testing.T) {
	ball := &fakeBall{at: physics.Vec3{X: 5}, owner: true, thrower: team.Blue}
	rules := New(ball, &fakeScorer{}, nil, spawnConfig(), log.NewNop())
	rules.HandleCollision(physics.TagCourt)
	require.Equal(t, 0, rules.BounceCount())

	remote := thrownBy(team.Blue, physics.Vec3{X: 5})
	remote.owner = false
	scorer := &fakeScorer{}
	remoteRules := New(remote, scorer, nil, spawnConfig(), log.NewNop())
	remoteRules.HandleCollision(physics.TagCourt)
	remoteRules.HandleCollision(physics.TagBoundingBox)
	require.Equal(t, 0, remoteRules.BounceCount())
	require.Empty(t, scorer.points)
}

func TestPenalty(t *testing.T) {
	tests := []struct {
		name     string
		ball     *fakeBall
		tag      string
		scorer   team.Color
		receiver physics.Vec3
	}{
		{
			name:     "blue throw out of bounds",
			ball:     thrownBy(team.Blue, physics.Vec3{X: 30}),
			tag:      physics.TagBoundingBox,
			scorer:   team.Red,
			receiver: blueSpawn,
		},
		{
			name:     "red throw into respawn zone",
			ball:     thrownBy(team.Red, physics.Vec3{X: -30}),
			tag:      physics.TagRespawn,
			scorer:   team.Blue,
			receiver: redSpawn,
		},
		{
			name:     "never thrown falls back to position",
			ball:     &fakeBall{at: physics.Vec3{X: -30}, owner: true, thrower: team.None},
			tag:      physics.TagBoundingBox,
			scorer:   team.Red,
			receiver: blueSpawn,
		},
		{
			name:     "knocked out after a grab",
			ball:     &fakeBall{at: physics.Vec3{X: 12}, owner: true, thrown: true, thrower: team.None},
			tag:      physics.TagRespawn,
			scorer:   team.Blue,
			receiver: redSpawn,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scorer := &fakeScorer{}
			rules := New(tt.ball, scorer, nil, spawnConfig(), log.NewNop())
			rules.HandleCollision(tt.tag)
			require.Equal(t, []team.Color{tt.scorer}, scorer.points)
			require.Equal(t, []physics.Vec3{tt.receiver}, tt.ball.teleport)
		})
	}
}

func TestRespawnResetsBounces(t *testing.T) {
	for _, before := range []int{0, 1, 5} {
		ball := thrownBy(team.Blue, physics.Vec3{X: 1})
		cfg := spawnConfig()
		cfg.MaxBounces = 10
		rules := New(ball, &fakeScorer{}, nil, cfg, log.NewNop())
		for i := 0; i < before; i++ {
			rules.HandleCollision(physics.TagCourt)
		}
		require.Equal(t, before, rules.BounceCount())

		rules.RespawnBall(team.Blue)
		require.Equal(t, 0, rules.BounceCount())
	}
}

func TestRespawnOnNonOwnerOnlyResetsState(t *testing.T) {
	ball := thrownBy(team.Blue, physics.Vec3{X: 1})
	ball.owner = false
	rules := New(ball, &fakeScorer{}, nil, spawnConfig(), log.NewNop())

	rules.RespawnBall(team.Red)
	require.False(t, ball.thrown)
	require.Zero(t, ball.released)
	require.Empty(t, ball.teleport)
}

func TestSpawnFallbacks(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	logger := log.NewWithCore(core)

	onlyBlue := DefaultConfig()
	onlyBlue.BlueSpawn = &blueSpawn
	ball := &fakeBall{owner: true}
	New(ball, &fakeScorer{}, nil, onlyBlue, logger).RespawnBall(team.Red)
	require.Equal(t, []physics.Vec3{blueSpawn}, ball.teleport)

	ball = &fakeBall{owner: true}
	New(ball, &fakeScorer{}, nil, DefaultConfig(), logger).RespawnBall(team.Blue)
	require.Equal(t, []physics.Vec3{{Y: 5}}, ball.teleport)

	require.Equal(t, 1, logs.FilterMessage("Spawn point not set, using the other side").Len())
	require.Equal(t, 1, logs.FilterMessage("No spawn points set, using default spawn").Len())
}

func TestManualRespawn(t *testing.T) {
	ball := thrownBy(team.Blue, physics.Vec3{X: 4})
	rules := New(ball, &fakeScorer{}, nil, spawnConfig(), log.NewNop())
	rules.HandleCollision(physics.TagCourt)

	rules.ManualRespawn()
	require.Equal(t, 0, rules.BounceCount())
	require.Equal(t, []physics.Vec3{{X: -70, Y: 5}}, ball.teleport)

	ball.owner = false
	rules.ManualRespawn()
	require.Len(t, ball.teleport, 1)
}

func TestRespawnOfHeldBallEndsFlight(t *testing.T) {
	for name, respawn := range map[string]func(*Rules){
		"respawn": func(r *Rules) { r.RespawnBall(team.Red) },
		"manual":  func(r *Rules) { r.ManualRespawn() },
	} {
		t.Run(name, func(t *testing.T) {
			ball := &fakeBall{at: physics.Vec3{X: 3}, owner: true, held: true}
			rules := New(ball, &fakeScorer{}, nil, spawnConfig(), log.NewNop())

			respawn(rules)
			require.Equal(t, 1, ball.released)
			require.False(t, ball.held)
			require.False(t, ball.thrown)
			require.Len(t, ball.teleport, 1)
		})
	}
}

func TestBounceTint(t *testing.T) {
	ball := thrownBy(team.Blue, physics.Vec3{X: 4})
	visuals := &fakeVisuals{}
	cfg := spawnConfig()
	cfg.MaxBounces = 4
	rules := New(ball, &fakeScorer{}, visuals, cfg, log.NewNop())

	rules.HandleCollision(physics.TagCourt)
	require.InDelta(t, 1-1.5*0.25, rules.Color().G, 1e-9)
	require.Equal(t, 1.0, rules.Color().R)

	rules.HandleCollision(physics.TagCourt)
	require.InDelta(t, 0.25, rules.Color().G, 1e-9)

	rules.HandleCollision(physics.TagCourt)
	require.Equal(t, 0.0, rules.Color().G, "tint saturates")
	require.Empty(t, visuals.emissions)

	rules.ResetColor()
	require.Equal(t, DefaultColor, rules.Color())
	require.Equal(t, []RGB{DefaultEmission}, visuals.emissions)
}

func TestMissingVisualsWarnsOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ball := thrownBy(team.Blue, physics.Vec3{X: 4})
	cfg := spawnConfig()
	cfg.MaxBounces = 5
	rules := New(ball, &fakeScorer{}, nil, cfg, log.NewWithCore(core))

	rules.HandleCollision(physics.TagCourt)
	rules.HandleCollision(physics.TagCourt)
	rules.ResetColor()
	require.Equal(t, 1, logs.FilterMessage("No ball visuals attached, skipping tint").Len())
}

func TestScorerFailureStillRespawns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ball := thrownBy(team.Red, physics.Vec3{X: 40})
	scorer := &fakeScorer{err: errors.New("game finished")}
	rules := New(ball, scorer, nil, spawnConfig(), log.NewWithCore(core))

	rules.HandleCollision(physics.TagBoundingBox)
	require.Len(t, ball.teleport, 1)
	require.Equal(t, 1, logs.FilterMessage("Point request failed").Len())
}

func TestParsePolicies(t *testing.T) {
	p, err := ParseBouncePolicy("uniform")
	require.NoError(t, err)
	require.Equal(t, Uniform, p)
	_, err = ParseBouncePolicy("sideways")
	require.Error(t, err)

	s, err := ParseServePolicy("winner")
	require.NoError(t, err)
	require.Equal(t, ServeWinner, s)
	_, err = ParseServePolicy("coin")
	require.Error(t, err)
}
