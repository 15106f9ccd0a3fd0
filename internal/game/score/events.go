package score

import (
	"github.com/zeusync/courtsync/internal/core/events/bus"
	"github.com/zeusync/courtsync/internal/game/team"
)

const (
	EventScoreChanged = "score.changed"
	EventMatchPoint   = "score.match_point"
	EventWin          = "score.win"
	EventGameStarted  = "score.game_started"
	EventScoreboard   = "score.scoreboard"
)

// ScoreChanged is published on every peer after a point that did not end
// the game.
type ScoreChanged struct {
	Team  team.Color
	Score int
}

// MatchPoint is published when Team sits one point from winning.
type MatchPoint struct {
	Team team.Color
}

// Win is published once per game on every peer.
type Win struct {
	Team team.Color
}

type GameStarted struct{}

// Scoreboard carries both counters after any replicated change, resets
// included.
type Scoreboard struct {
	Blue, Red int
}

func (ScoreChanged) Type() string { return EventScoreChanged }
func (MatchPoint) Type() string   { return EventMatchPoint }
func (Win) Type() string          { return EventWin }
func (GameStarted) Type() string  { return EventGameStarted }
func (Scoreboard) Type() string   { return EventScoreboard }

// Reactor consumes score events: scoreboard UI, audio, camera.
type Reactor interface {
	OnScoreChanged(ScoreChanged)
	OnMatchPoint(MatchPoint)
	OnWin(Win)
}

// Attach subscribes r to the score events on b and returns a function that
// detaches it. Reactors that also implement OnGameStarted or OnScoreboard
// receive those events too.
func Attach(b bus.Bus, r Reactor) (detach func()) {
	subs := []bus.Subscription{
		b.Subscribe(EventScoreChanged, func(e bus.Event) error {
			r.OnScoreChanged(e.(ScoreChanged))
			return nil
		}),
		b.Subscribe(EventMatchPoint, func(e bus.Event) error {
			r.OnMatchPoint(e.(MatchPoint))
			return nil
		}),
		b.Subscribe(EventWin, func(e bus.Event) error {
			r.OnWin(e.(Win))
			return nil
		}),
	}
	if s, ok := r.(interface{ OnGameStarted(GameStarted) }); ok {
		subs = append(subs, b.Subscribe(EventGameStarted, func(e bus.Event) error {
			s.OnGameStarted(e.(GameStarted))
			return nil
		}))
	}
	if s, ok := r.(interface{ OnScoreboard(Scoreboard) }); ok {
		subs = append(subs, b.Subscribe(EventScoreboard, func(e bus.Event) error {
			s.OnScoreboard(e.(Scoreboard))
			return nil
		}))
	}
	return func() {
		for _, sub := range subs {
			b.Unsubscribe(sub)
		}
	}
}
