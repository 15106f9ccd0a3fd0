// Package score keeps the match score. Counters are written by the host
// only and replicated to every peer; points requested elsewhere are
// forwarded to the host.
package score

import (
	"errors"
	"fmt"

	"github.com/zeusync/courtsync/internal/core/events/bus"
	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/core/protocol"
	"github.com/zeusync/courtsync/internal/core/replication"
	"github.com/zeusync/courtsync/internal/game/team"
)

const ObjectID protocol.ObjectID = "score"

const (
	MethodRequestPoint = "score.request_point"
	MethodPoint        = "score.point"
	MethodGameOver     = "score.game_over"
	MethodGameStart    = "score.game_start"
)

const DefaultWinningScore = 7

var (
	ErrNotServer    = errors.New("score: only the host may change the score")
	ErrGameFinished = errors.New("score: game already finished")
	ErrInvalidTeam  = errors.New("score: invalid team")
)

type Config struct {
	WinningScore int
}

func DefaultConfig() Config {
	return Config{WinningScore: DefaultWinningScore}
}

type pointArgs struct {
	Team  team.Color `json:"team"`
	Score int        `json:"score,omitempty"`
}

// Authority is the single score keeper of a session.
type Authority struct {
	rpc     *protocol.Dispatcher
	events  bus.Bus
	logger  log.Log
	winning int

	scores  [team.Count]*replication.Value[int]
	running bool
	detach  []func()
}

func New(reg *replication.Registry, rpc *protocol.Dispatcher, events bus.Bus, cfg Config, logger log.Log) (*Authority, error) {
	if logger == nil {
		logger = log.Provide()
	}
	if cfg.WinningScore <= 0 {
		cfg.WinningScore = DefaultWinningScore
	}
	a := &Authority{
		rpc:     rpc,
		events:  events,
		logger:  logger.With(log.String("component", "score")),
		winning: cfg.WinningScore,
		running: true,
	}

	for _, c := range []team.Color{team.Blue, team.Red} {
		v, err := replication.New(reg, ObjectID, c.String(), replication.WriteServer, nil, 0)
		if err != nil {
			a.unsubscribe()
			return nil, err
		}
		sub := v.Subscribe(func(_, _ int) { a.publish(a.scoreboard()) })
		a.detach = append(a.detach, func() { v.Unsubscribe(sub) })
		a.scores[c] = v
	}

	handlers := map[string]protocol.Handler{
		MethodRequestPoint: a.handleRequestPoint,
		MethodPoint:        a.handlePoint,
		MethodGameOver:     a.handleGameOver,
		MethodGameStart:    a.handleGameStart,
	}
	for method, h := range handlers {
		if err := rpc.Register(ObjectID, method, h); err != nil {
			rpc.UnregisterObject(ObjectID)
			a.unsubscribe()
			return nil, err
		}
	}
	return a, nil
}

// Close drops the RPC handlers and the scoreboard observers. The counters
// stay readable.
func (a *Authority) Close() {
	a.rpc.UnregisterObject(ObjectID)
	a.unsubscribe()
}

func (a *Authority) unsubscribe() {
	for _, fn := range a.detach {
		fn()
	}
	a.detach = nil
}

// Score returns the replicated counter of c.
func (a *Authority) Score(c team.Color) int {
	if !c.Valid() {
		return 0
	}
	return a.scores[c].Get()
}

// Running reports whether points are still accepted.
func (a *Authority) Running() bool { return a.running }

func (a *Authority) WinningScore() int { return a.winning }

// RequestPoint awards a point to c, forwarding the request to the host when
// called on a client.
func (a *Authority) RequestPoint(c team.Color) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidTeam, c)
	}
	return a.rpc.Call(ObjectID, MethodRequestPoint, protocol.Server(), pointArgs{Team: c})
}

func (a *Authority) handleRequestPoint(call protocol.Call) error {
	var args pointArgs
	if err := call.Decode(&args); err != nil {
		return err
	}
	if err := a.AwardPoint(args.Team); err != nil {
		a.logger.Warn("Point request rejected",
			log.String("team", args.Team.String()),
			log.Uint64("from", uint64(call.From)),
			log.Error(err))
		return err
	}
	return nil
}

// AwardPoint increments the counter of c and announces the result. Host only.
func (a *Authority) AwardPoint(c team.Color) error {
	if !a.rpc.IsServer() {
		return ErrNotServer
	}
	if !c.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidTeam, c)
	}
	if !a.running {
		return ErrGameFinished
	}

	next := a.scores[c].Get() + 1
	if err := a.scores[c].Set(next); err != nil {
		return err
	}
	a.logger.Info("Point awarded", log.String("team", c.String()), log.Int("score", next))

	if next >= a.winning {
		return a.rpc.Call(ObjectID, MethodGameOver, protocol.Everyone(), pointArgs{Team: c, Score: next})
	}
	return a.rpc.Call(ObjectID, MethodPoint, protocol.Everyone(), pointArgs{Team: c, Score: next})
}

// ResetScores zeroes both counters. It does not restart a finished game.
func (a *Authority) ResetScores() error {
	if !a.rpc.IsServer() {
		return ErrNotServer
	}
	for _, v := range a.scores {
		if err := v.Set(0); err != nil {
			return err
		}
	}
	return nil
}

// Restart resets the counters and starts a new game on every peer.
func (a *Authority) Restart() error {
	if err := a.ResetScores(); err != nil {
		return err
	}
	return a.rpc.Call(ObjectID, MethodGameStart, protocol.Everyone(), nil)
}

func (a *Authority) fromServer(call protocol.Call) error {
	if call.From != protocol.ServerPeerID {
		a.logger.Warn("Dropped score broadcast from non-host",
			log.String("method", call.Method),
			log.Uint64("from", uint64(call.From)))
		return ErrNotServer
	}
	return nil
}

func (a *Authority) handlePoint(call protocol.Call) error {
	if err := a.fromServer(call); err != nil {
		return err
	}
	var args pointArgs
	if err := call.Decode(&args); err != nil {
		return err
	}
	a.publish(ScoreChanged{Team: args.Team, Score: args.Score})
	if args.Score == a.winning-1 {
		a.publish(MatchPoint{Team: args.Team})
	}
	return nil
}

func (a *Authority) handleGameOver(call protocol.Call) error {
	if err := a.fromServer(call); err != nil {
		return err
	}
	var args pointArgs
	if err := call.Decode(&args); err != nil {
		return err
	}
	if !a.running {
		return nil
	}
	a.running = false
	a.logger.Info("Game over", log.String("winner", args.Team.String()), log.Int("score", args.Score))
	a.publish(Win{Team: args.Team})
	return nil
}

func (a *Authority) handleGameStart(call protocol.Call) error {
	if err := a.fromServer(call); err != nil {
		return err
	}
	a.running = true
	a.logger.Info("Game started")
	a.publish(GameStarted{})
	return nil
}

func (a *Authority) scoreboard() Scoreboard {
	return Scoreboard{Blue: a.scores[team.Blue].Get(), Red: a.scores[team.Red].Get()}
}

func (a *Authority) publish(e bus.Event) {
	if a.events == nil {
		return
	}
	if err := a.events.Publish(e); err != nil {
		a.logger.Warn("Score reactor failed", log.String("event", e.Type()), log.Error(err))
	}
}
