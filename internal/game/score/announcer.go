package score

import (
	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/game/team"
)

// Audio cues for players.
const (
	CueScore = "score"
	CueLost  = "lost"
	CueWin   = "win"
	CueLose  = "lose"
)

// Player plays a named audio cue.
type Player interface {
	Play(cue string)
}

// LogPlayer logs cues instead of playing them; headless peers use it.
type LogPlayer struct {
	Logger log.Log
}

func (p LogPlayer) Play(cue string) {
	if p.Logger != nil {
		p.Logger.Info("Announce", log.String("cue", cue))
	}
}

// Announcer voices score events. Spectators hear the announcer lines for
// both teams; players hear their own score or loss cue.
type Announcer struct {
	player    Player
	local     team.Color
	spectator bool
}

var _ Reactor = (*Announcer)(nil)

func NewAnnouncer(player Player, local team.Color, spectator bool) *Announcer {
	return &Announcer{player: player, local: local, spectator: spectator}
}

func (a *Announcer) OnScoreChanged(e ScoreChanged) {
	if a.spectator {
		a.player.Play("point_" + e.Team.String())
		return
	}
	if e.Team == a.local {
		a.player.Play(CueScore)
	} else {
		a.player.Play(CueLost)
	}
}

func (a *Announcer) OnMatchPoint(e MatchPoint) {
	if a.spectator {
		a.player.Play("matchpoint_" + e.Team.String())
	}
}

func (a *Announcer) OnWin(e Win) {
	if a.spectator {
		a.player.Play("win_" + e.Team.String())
		return
	}
	if e.Team == a.local {
		a.player.Play(CueWin)
	} else {
		a.player.Play(CueLose)
	}
}
