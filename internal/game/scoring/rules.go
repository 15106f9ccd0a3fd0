// Package scoring evaluates the dodgeball court rules for a thrown ball:
// bounce counting, out-of-bounds penalties and respawning at a serve point.
package scoring

import (
	"fmt"
	"math"

	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/physics"
	"github.com/zeusync/courtsync/internal/game/team"
)

// BouncePolicy decides which court bounces count toward maxBounces.
type BouncePolicy uint8

const (
	// OpponentHalf counts only bounces on the half the thrower attacks.
	OpponentHalf BouncePolicy = iota
	// Uniform counts every court bounce.
	Uniform
)

func (p BouncePolicy) String() string {
	if p == Uniform {
		return "uniform"
	}
	return "opponent-half"
}

func ParseBouncePolicy(s string) (BouncePolicy, error) {
	switch s {
	case "", "opponent-half":
		return OpponentHalf, nil
	case "uniform":
		return Uniform, nil
	default:
		return OpponentHalf, fmt.Errorf("unknown bounce policy %q", s)
	}
}

// ServePolicy decides which side receives the ball after a point.
type ServePolicy uint8

const (
	ServeLoser ServePolicy = iota
	ServeWinner
)

func (p ServePolicy) String() string {
	if p == ServeWinner {
		return "winner"
	}
	return "loser"
}

func ParseServePolicy(s string) (ServePolicy, error) {
	switch s {
	case "", "loser":
		return ServeLoser, nil
	case "winner":
		return ServeWinner, nil
	default:
		return ServeLoser, fmt.Errorf("unknown serve policy %q", s)
	}
}

// RGB is a linear colour with components in [0, 1].
type RGB struct {
	R, G, B float64
}

var (
	DefaultColor    = RGB{R: 0.816, G: 1, B: 0}
	DefaultEmission = RGB{R: 0.3066, G: 0.6588, B: 0.2941}
)

type Config struct {
	MaxBounces    int
	Bounce        BouncePolicy
	Serve         ServePolicy
	BlueSpawn     *physics.Vec3
	RedSpawn      *physics.Vec3
	DefaultSpawn  physics.Vec3
	ButtonRespawn physics.Vec3
	Color         RGB
	Emission      RGB
}

func DefaultConfig() Config {
	return Config{
		MaxBounces:    1,
		Bounce:        OpponentHalf,
		Serve:         ServeLoser,
		DefaultSpawn:  physics.Vec3{Y: 5},
		ButtonRespawn: physics.Vec3{X: -70, Y: 5},
		Color:         DefaultColor,
		Emission:      DefaultEmission,
	}
}

// Ball is the part of a physics.Interactable the rules drive.
type Ball interface {
	Position() physics.Vec3
	IsOwner() bool
	IsThrown() bool
	LastThrownBy() team.Color
	ForceRelease()
	Teleport(at physics.Vec3)
	ClearThrown()
}

// Scorer receives the points decided by the rules.
type Scorer interface {
	RequestPoint(c team.Color) error
}

// Visuals tints the ball material.
type Visuals interface {
	SetColor(c RGB)
	SetEmission(c RGB)
}

// Rules implements physics.CollisionRules for one ball.
type Rules struct {
	ball    Ball
	scorer  Scorer
	visuals Visuals
	cfg     Config
	logger  log.Log

	bounces     int
	color       RGB
	warnedPaint bool
}

var _ physics.CollisionRules = (*Rules)(nil)

func New(ball Ball, scorer Scorer, visuals Visuals, cfg Config, logger log.Log) *Rules {
	if logger == nil {
		logger = log.Provide()
	}
	return &Rules{
		ball:    ball,
		scorer:  scorer,
		visuals: visuals,
		cfg:     cfg,
		logger:  logger.With(log.String("component", "scoring")),
		color:   cfg.Color,
	}
}

// BounceCount is the number of counted bounces of the current throw.
func (r *Rules) BounceCount() int { return r.bounces }

// Color is the last tint applied to the ball.
func (r *Rules) Color() RGB { return r.color }

func (r *Rules) Config() Config { return r.cfg }

// HandleCollision evaluates one collision of the owned ball.
func (r *Rules) HandleCollision(tag string) {
	if !r.ball.IsOwner() {
		return
	}
	switch tag {
	case physics.TagCourt:
		r.courtBounce()
	case physics.TagRespawn, physics.TagBoundingBox:
		r.penalty()
	}
}

func (r *Rules) courtBounce() {
	if !r.ball.IsThrown() || !r.counts(r.ball.Position()) {
		return
	}
	r.bounces++
	if r.bounces > r.cfg.MaxBounces {
		r.logger.Debug("Bounce limit reached", log.Int("bounces", r.bounces))
		r.award(r.positionScorer())
		return
	}
	r.tint()
}

func (r *Rules) counts(at physics.Vec3) bool {
	if r.cfg.Bounce == Uniform {
		return true
	}
	switch r.ball.LastThrownBy() {
	case team.Blue:
		return at.X > 0
	case team.Red:
		return at.X < 0
	default:
		return true
	}
}

// positionScorer gives the point to the side whose half the ball is not in.
func (r *Rules) positionScorer() team.Color {
	return team.HalfOf(r.ball.Position().X).Opponent()
}

func (r *Rules) penalty() {
	scorer := r.positionScorer()
	if thrower := r.ball.LastThrownBy(); r.ball.IsThrown() && thrower.Valid() {
		scorer = thrower.Opponent()
	}
	r.logger.Debug("Ball out of bounds", log.String("scorer", scorer.String()))
	r.award(scorer)
}

func (r *Rules) award(scorer team.Color) {
	if err := r.scorer.RequestPoint(scorer); err != nil {
		r.logger.Warn("Point request failed", log.String("team", scorer.String()), log.Error(err))
	}
	receiver := scorer.Opponent()
	if r.cfg.Serve == ServeWinner {
		receiver = scorer
	}
	r.RespawnBall(receiver)
}

// RespawnBall resets the throw and moves the ball to the serve point of
// receiver. Only the owner moves the body.
func (r *Rules) RespawnBall(receiver team.Color) {
	r.ResetBounces()
	r.ResetColor()
	if !r.ball.IsOwner() {
		r.ball.ClearThrown()
		return
	}
	// releasing launches the ball, so the flight is cleared afterwards
	r.ball.ForceRelease()
	r.ball.ClearThrown()
	r.ball.Teleport(r.spawnFor(receiver))
}

func (r *Rules) spawnFor(receiver team.Color) physics.Vec3 {
	own, other := r.cfg.BlueSpawn, r.cfg.RedSpawn
	if receiver == team.Red {
		own, other = other, own
	}
	if own != nil {
		return *own
	}
	if other != nil {
		r.logger.Warn("Spawn point not set, using the other side", log.String("team", receiver.String()))
		return *other
	}
	r.logger.Warn("No spawn points set, using default spawn", log.String("team", receiver.String()))
	return r.cfg.DefaultSpawn
}

// ManualRespawn moves the ball to the fixed button respawn point.
func (r *Rules) ManualRespawn() {
	if !r.ball.IsOwner() {
		return
	}
	r.ResetBounces()
	r.ResetColor()
	r.ball.ForceRelease()
	r.ball.ClearThrown()
	r.ball.Teleport(r.cfg.ButtonRespawn)
}

func (r *Rules) ResetBounces() { r.bounces = 0 }

func (r *Rules) ResetColor() {
	emission := r.cfg.Emission
	r.paint(r.cfg.Color, &emission)
}

func (r *Rules) tint() {
	if r.cfg.MaxBounces <= 0 {
		return
	}
	c := float64(max(r.bounces, 1)) / float64(r.cfg.MaxBounces)
	fade := clamp01(1 - 1.5*c)
	r.paint(RGB{R: 1, G: fade, B: fade}, nil)
}

// paint applies color, and emission when set.
func (r *Rules) paint(color RGB, emission *RGB) {
	r.color = color
	if r.visuals == nil {
		if !r.warnedPaint {
			r.warnedPaint = true
			r.logger.Warn("No ball visuals attached, skipping tint")
		}
		return
	}
	r.visuals.SetColor(color)
	if emission != nil {
		r.visuals.SetEmission(*emission)
	}
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
