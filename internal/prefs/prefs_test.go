package prefs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zeusync/courtsync/internal/core/observability/log"
	"github.com/zeusync/courtsync/internal/game/team"
)

type mapItems struct {
	data    map[string][]byte
	loadErr error
}

func (m *mapItems) LoadItem(key string) ([]byte, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[key], nil
}

func (m *mapItems) SaveItem(key string, data []byte) error {
	m.data[key] = data
	return nil
}

func TestMemoryDefaults(t *testing.T) {
	s := NewMemory()
	require.Equal(t, team.None, s.PlayerColor())
	require.False(t, IsSpectator(s))

	require.NoError(t, s.SetPlayerColor(team.Red))
	require.NoError(t, s.SetRunMode(ModeSpectator))
	require.Equal(t, team.Red, s.PlayerColor())
	require.True(t, IsSpectator(s))
}

func TestDiskRoundTrip(t *testing.T) {
	items := &mapItems{data: map[string][]byte{}}
	s := newDisk(items, log.NewNop())

	require.Equal(t, team.None, s.PlayerColor(), "nothing stored yet")
	require.Equal(t, ModeVR, s.RunMode())

	require.NoError(t, s.SetPlayerColor(team.Blue))
	require.NoError(t, s.SetRunMode(ModeSpectator))
	require.Equal(t, []byte("blue"), items.data[KeyPlayerColor])
	require.Equal(t, team.Blue, s.PlayerColor())
	require.Equal(t, ModeSpectator, s.RunMode())

	require.Error(t, s.SetRunMode("AR"))
}

func TestDiskFallsBackOnBadData(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	items := &mapItems{data: map[string][]byte{
		KeyPlayerColor: []byte("green"),
		KeyRunMode:     []byte("Desktop"),
	}}
	s := newDisk(items, log.NewWithCore(core))

	require.Equal(t, team.None, s.PlayerColor())
	require.Equal(t, ModeVR, s.RunMode())
	require.Equal(t, 2, logs.Len())

	items.loadErr = errors.New("disk gone")
	require.Equal(t, team.None, s.PlayerColor())
	require.Equal(t, 1, logs.FilterMessage("Could not load preference").Len())
}

func TestParseRunMode(t *testing.T) {
	m, err := ParseRunMode("Spectator")
	require.NoError(t, err)
	require.Equal(t, ModeSpectator, m)
	_, err = ParseRunMode("spectating")
	require.Error(t, err)
}
