// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-table-manager/pkg/config"
	"github.com/AccelByte/extend-table-manager/pkg/constants"
)

func threePlayerGame() config.Game {
	return config.Game{
		File:             "/games/holdem.nolimit.3p.game",
		NumHandsPerMatch: 100,
		NumPlayers:       3,
		MaxNumMatches:    2,
		Opponents: map[string]config.Opponent{
			"Tester":     {Runner: []string{"/bots/tester"}},
			"SpecialBot": {Runner: []string{"/bots/special", "--fast"}, RequiresSpecialPort: true},
		},
	}
}

func TestMatch_FinalizeResolvesSeatsOnce(t *testing.T) {
	match := NewMatch("  Alice  ", "three_player_nolimit")
	match.Seat = 2
	match.OpponentNames = []string{"SpecialBot", "Bob"}

	require.NoError(t, match.Finalize(threePlayerGame()))

	assert.True(t, match.ReadyToStart)
	assert.Equal(t, "Alice", match.UserName)
	assert.Equal(t, 100, match.NumberOfHands)
	assert.Equal(t, "/games/holdem.nolimit.3p.game", match.GameDefinitionFile)
	require.Len(t, match.Players, 3)
	assert.Equal(t, Bot("SpecialBot", []string{"/bots/special", "--fast"}, true), match.Players[0])
	assert.Equal(t, HumanProxy("Alice"), match.Players[1])
	assert.Equal(t, HumanProxy("Bob"), match.Players[2])
	assert.Len(t, match.PlayerPIDs, 3)
}

func TestMatch_FinalizeDefaults(t *testing.T) {
	match := NewMatch("", "three_player_nolimit")

	require.NoError(t, match.Finalize(threePlayerGame()))

	assert.Equal(t, DefaultUserName, match.UserName)
	assert.Contains(t, match.Name, "match.Guest.three_player_nolimit.")
	assert.GreaterOrEqual(t, match.Seat, 1)
	assert.LessOrEqual(t, match.Seat, 3)
	assert.Equal(t, []string{DefaultOpponentName, DefaultOpponentName}, match.OpponentNames)
	assert.Equal(t, constants.DefaultDealerOptions, match.DealerOptions)
	assert.Equal(t, -1, match.LastSliceViewed)
	assert.Less(t, match.RandomSeed, int64(1)<<32)
}

func TestMatch_FinalizeClampsSeat(t *testing.T) {
	match := NewMatch("Alice", "three_player_nolimit")
	match.Seat = 9

	require.NoError(t, match.Finalize(threePlayerGame()))

	assert.Equal(t, 3, match.Seat)
}

func TestMatch_FinalizeRejectsWrongPlayerCount(t *testing.T) {
	match := NewMatch("Alice", "three_player_nolimit")
	match.Seat = 1
	match.OpponentNames = []string{"Tester"}

	err := match.Finalize(threePlayerGame())

	assert.ErrorIs(t, err, ValidationErrorPlayerCount)
	assert.Equal(t, 510206, ValidationErrorCode(err))
	assert.False(t, match.ReadyToStart)
}

func TestMatch_SpecialPortRequirementsHumanSeatIsFalse(t *testing.T) {
	match := NewMatch("Alice", "three_player_nolimit")
	match.Seat = 1
	match.OpponentNames = []string{"SpecialBot", "SpecialBot"}
	require.NoError(t, match.Finalize(threePlayerGame()))

	assert.Equal(t, []bool{false, true, true}, match.SpecialPortRequirements())
	assert.Equal(t, 2, match.NumSpecialPortsRequired())
}

func TestMatch_Predicates(t *testing.T) {
	alive := map[int]bool{10: true, 11: true}
	isAlive := func(pid int) bool { return alive[pid] }

	match := &Match{DealerPID: 10, ProxyPID: 11, LastSliceViewed: -1}
	assert.False(t, match.Started())
	assert.True(t, match.Running(isAlive))
	assert.False(t, match.Defunct(isAlive))
	assert.True(t, match.AllSlicesViewed())

	match.AppendSlice(MatchSlice{})
	assert.True(t, match.Started())
	assert.False(t, match.Finished())
	assert.False(t, match.AllSlicesViewed())

	alive[11] = false
	assert.False(t, match.Running(isAlive))
	assert.True(t, match.Defunct(isAlive))

	match.AppendSlice(MatchSlice{MatchEnded: true})
	assert.True(t, match.Finished())
	assert.False(t, match.Defunct(isAlive))
}

func TestMatch_ProcessIDsSkipsZeroAndDuplicates(t *testing.T) {
	match := &Match{DealerPID: 10, ProxyPID: 12, PlayerPIDs: []int{0, 12, 13}}

	assert.Equal(t, []int{10, 12, 13}, match.ProcessIDs())

	match.ClearProcesses()
	assert.Empty(t, match.ProcessIDs())
	assert.Len(t, match.PlayerPIDs, 3)
}

func TestNewName(t *testing.T) {
	at := time.Date(2024, time.March, 7, 9, 5, 13, 0, time.UTC)

	assert.Equal(t, "match.Alice.holdem.10h.2s.42r.Mar7_2024-at-9_5_13", NewName("Alice", "holdem", 10, 2, 42, at))
	assert.Equal(t, "match.Alice", NewName("Alice", "", 0, 0, 0, time.Time{}))
}

func TestProxyID_RoundTrip(t *testing.T) {
	matchID, seat, err := ParseProxyID(ProxyID("01HXYZ", 2))

	require.NoError(t, err)
	assert.Equal(t, "01HXYZ", matchID)
	assert.Equal(t, 2, seat)

	_, _, err = ParseProxyID("nodot")
	assert.Error(t, err)
}

func TestMatch_CopyIsDeep(t *testing.T) {
	match := &Match{ID: "m", Slices: []MatchSlice{{BoardCards: []string{"Ah"}}}}

	copied := match.Copy()
	copied.Slices[0].BoardCards[0] = "Kd"

	assert.Equal(t, "Ah", match.Slices[0].BoardCards[0])
}
