package score

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/courtsync/internal/core/events/bus"
	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/game/team"
)

type cues []string

func (c *cues) Play(cue string) { *c = append(*c, cue) }

func TestAnnouncerSpectator(t *testing.T) {
	var played cues
	a := NewAnnouncer(&played, team.None, true)

	a.OnScoreChanged(ScoreChanged{Team: team.Red, Score: 3})
	a.OnMatchPoint(MatchPoint{Team: team.Red})
	a.OnWin(Win{Team: team.Blue})
	require.Equal(t, cues{"point_red", "matchpoint_red", "win_blue"}, played)
}

func TestAnnouncerPlayer(t *testing.T) {
	var played cues
	a := NewAnnouncer(&played, team.Blue, false)

	a.OnScoreChanged(ScoreChanged{Team: team.Blue, Score: 1})
	a.OnScoreChanged(ScoreChanged{Team: team.Red, Score: 1})
	a.OnMatchPoint(MatchPoint{Team: team.Red})
	a.OnWin(Win{Team: team.Red})
	require.Equal(t, cues{CueScore, CueLost, CueLose}, played)
}

func TestAttachDetach(t *testing.T) {
	events := bus.New()
	var played cues
	detach := Attach(events, NewAnnouncer(&played, team.Red, false))
	require.Equal(t, 1, events.Subscribers(EventWin))
	require.Zero(t, events.Subscribers(EventGameStarted), "announcer has no game start handler")

	require.NoError(t, events.Publish(Win{Team: team.Red}))
	detach()
	require.NoError(t, events.Publish(Win{Team: team.Red}))
	require.Equal(t, cues{CueWin}, played)
	require.Zero(t, events.Subscribers(EventScoreChanged))
}

func TestLogPlayer(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	LogPlayer{Logger: log.NewWithCore(core)}.Play("win_red")
	entries := logs.FilterMessage("Announce").All()
	require.Len(t, entries, 1)
	require.Equal(t, "win_red", entries[0].ContextMap()["cue"])
}
