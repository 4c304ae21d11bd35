// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package proxy

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/elliotchance/pie/v2"

	"github.com/AccelByte/extend-table-manager/pkg/acpc"
	"github.com/AccelByte/extend-table-manager/pkg/models"
)

// view turns replayed tables into slices as seen from one position.
type view struct {
	names    []string // by seat
	numHands int
}

func (v view) slice(table *acpc.Table, balances []int, now time.Time) models.MatchSlice {
	state := table.State
	n := table.Def.NumPlayers
	round := state.Round()
	viewer := state.Position

	players := make([]models.PlayerView, n)
	for seat := range players {
		p := acpc.PositionOf(seat, state.HandNumber, n)
		player := models.PlayerView{
			Name:              v.name(seat),
			Seat:              seat,
			ChipStack:         table.Def.Stacks[p] - table.Total(p),
			ChipContributions: slices.Clone(table.Contributions[p][:round+1]),
			ChipBalance:       balances[seat],
			HoleCards:         holeCards(table, p, viewer),
			Folded:            table.Folded[p],
			Dealer:            p == n-1,
			Acting:            table.NextToAct == p,
		}
		if table.HandEnded {
			player.Winnings = table.Winnings[p]
		}
		players[seat] = player
	}

	slice := models.MatchSlice{
		StateString:       state.Raw,
		HandEnded:         table.HandEnded,
		MatchEnded:        v.matchEnded(table),
		HandIndex:         state.HandNumber,
		SeatNextToAct:     -1,
		AmountToCall:      table.AmountToCall(viewer),
		BoardCards:        state.BoardCards(),
		PotAtStartOfRound: table.PotAtStartOfRound(),
		Players:           players,
		CreatedAt:         now.UTC(),
	}
	if table.NextToAct >= 0 {
		slice.SeatNextToAct = acpc.SeatOf(table.NextToAct, state.HandNumber, n)
	}
	if table.NextToAct == viewer {
		slice.LegalActions = pie.Map(table.LegalActions(), func(a acpc.LegalAction) models.LegalAction {
			return models.LegalAction{Type: a.Type, Cost: a.Cost}
		})
	}

	return slice
}

func (v view) matchEnded(table *acpc.Table) bool {
	return table.HandEnded && v.numHands > 0 && table.State.HandNumber >= v.numHands-1
}

func (v view) name(seat int) string {
	if seat < len(v.names) {
		return v.names[seat]
	}
	return fmt.Sprintf("seat %d", seat+1)
}

// holeCards shows the viewer's cards, everyone's at showdown, nothing for
// folded players and placeholders otherwise.
func holeCards(table *acpc.Table, p, viewer int) []string {
	cards := table.State.HoleCards[p]
	switch {
	case p == viewer:
		return slices.Clone(cards)
	case table.Folded[p]:
		return []string{}
	case table.ReachedShowdown && len(cards) > 0:
		return slices.Clone(cards)
	}

	masked := make([]string, table.Def.NumHoleCards)
	for i := range masked {
		masked[i] = models.MaskedCard
	}
	return masked
}

// messages describes what changed between previous and table. previous is
// nil for the first state of a hand.
func (v view) messages(previous, table *acpc.Table) []string {
	state := table.State
	n := table.Def.NumPlayers
	nameAt := func(p int) string { return v.name(acpc.SeatOf(p, state.HandNumber, n)) }

	var messages []string
	if state.FirstStateOfFirstRound() {
		messages = append(messages, fmt.Sprintf("%s shuffles and deals hand #%d of %d to %s.",
			nameAt(n-1), state.HandNumber+1, v.numHands, joinNames(v.names)))
	}

	if action, ok := state.LastAction(); ok && table.LastActor >= 0 {
		actor := nameAt(table.LastActor)
		switch action.Type {
		case acpc.WireFold:
			messages = append(messages, actor+" folds.")
		case acpc.WireCall:
			owed := 0
			if previous != nil {
				owed = previous.AmountToCall(table.LastActor)
			}
			if owed == 0 {
				messages = append(messages, actor+" checks.")
			} else {
				messages = append(messages, fmt.Sprintf("%s calls %d.", actor, owed))
			}
		case acpc.WireRaise:
			verb := "raises"
			if previous != nil && previous.State.Round() > 0 && previous.Raises == 0 {
				verb = "bets"
			}
			messages = append(messages, fmt.Sprintf("%s %s to %d.", actor, verb, table.Total(table.LastActor)))
		}
	}

	if round := state.Round(); round > 0 && state.FirstStateOfRound() && round-1 < len(state.Board) {
		revealed := state.Board[round-1]
		verb := "is"
		if len(revealed) > 1 {
			verb = "are"
		}
		messages = append(messages, fmt.Sprintf("%s %s revealed.", strings.Join(revealed, " "), verb))
	}

	if table.HandEnded {
		messages = append(messages, v.handResult(table, nameAt)...)
	}

	return messages
}

func (v view) handResult(table *acpc.Table, nameAt func(int) string) []string {
	var messages []string
	if table.ReachedShowdown {
		for p := 0; p < table.Def.NumPlayers; p++ {
			if !table.Folded[p] && table.Descriptions[p] != "" {
				messages = append(messages, fmt.Sprintf("%s shows %s.", nameAt(p), table.Descriptions[p]))
			}
		}
	}

	var winners []string
	for p, won := range table.Winnings {
		if won > 0 {
			winners = append(winners, nameAt(p))
		}
	}
	switch len(winners) {
	case 0:
	case 1:
		messages = append(messages, fmt.Sprintf("%s wins %d.", winners[0], table.Pot()))
	default:
		messages = append(messages, fmt.Sprintf("%s split the pot of %d.", joinNames(winners), table.Pot()))
	}

	return messages
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
