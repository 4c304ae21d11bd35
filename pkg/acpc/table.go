// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package acpc

import (
	"fmt"
	"slices"
)

// Legal action types as presented to players.
const (
	LegalFold  = "f"
	LegalCall  = "c"
	LegalCheck = "k"
	LegalBet   = "b"
	LegalRaise = "r"
)

type LegalAction struct {
	Type string
	Cost int
}

// Table is a hand replayed from a match state. Positions are the dealer's
// per-hand numbering; use SeatOf to map them to seats.
type Table struct {
	Def   *GameDef
	State MatchState

	// Contributions holds the chips each position put in, per round.
	Contributions [][]int
	Folded        []bool
	AllIn         []bool
	// NextToAct is -1 once nobody can act.
	NextToAct       int
	LastActor       int
	HandEnded       bool
	ReachedShowdown bool
	Raises          int
	LastRaiseSize   int
	// Winnings and Descriptions are filled once the hand ended.
	Winnings     []int
	Descriptions []string

	maxTotal int
	// acted marks who acted in the current round since its last raise
	acted []bool
}

// NewTable replays state under def.
func NewTable(def *GameDef, state MatchState) (*Table, error) {
	n := def.NumPlayers
	if len(state.HoleCards) != n {
		return nil, fmt.Errorf("%w: %d hands for %d players", ErrMatchState, len(state.HoleCards), n)
	}
	if state.Round() >= def.NumRounds {
		return nil, fmt.Errorf("%w: round %d beyond %d rounds", ErrMatchState, state.Round(), def.NumRounds)
	}

	t := &Table{
		Def:           def,
		State:         state,
		Contributions: make([][]int, n),
		Folded:        make([]bool, n),
		AllIn:         make([]bool, n),
		NextToAct:     -1,
		LastActor:     -1,
	}
	for p := range t.Contributions {
		t.Contributions[p] = make([]int, def.NumRounds)
		t.Contributions[p][0] = min(def.Blinds[p], def.Stacks[p])
		t.maxTotal = max(t.maxTotal, t.Contributions[p][0])
	}

	for round, actions := range state.Betting {
		if err := t.replayRound(round, actions); err != nil {
			return nil, err
		}
	}
	t.settle()

	return t, nil
}

func (t *Table) replayRound(round int, actions []Action) error {
	t.Raises = 0
	t.LastRaiseSize = t.Def.BigBlind()
	t.acted = make([]bool, t.Def.NumPlayers)
	actor := t.nextAble(t.Def.FirstPlayers[round] - 1)

	for _, action := range actions {
		if actor < 0 {
			return fmt.Errorf("%w: action %s with nobody to act", ErrMatchState, action)
		}

		switch action.Type {
		case WireFold:
			t.Folded[actor] = true
		case WireCall:
			t.Contributions[actor][round] += t.AmountToCall(actor)
		case WireRaise:
			to := t.maxTotal + t.Def.RaiseSizes[round]
			if t.Def.NoLimit() {
				to = action.Amount
				if to == 0 {
					to = t.maxTotal + t.LastRaiseSize
				}
			}
			to = min(to, t.Def.Stacks[actor])
			if to <= t.maxTotal {
				return fmt.Errorf("%w: raise to %d does not exceed %d", ErrMatchState, to, t.maxTotal)
			}
			t.LastRaiseSize = max(t.LastRaiseSize, to-t.maxTotal)
			t.Contributions[actor][round] += to - t.Total(actor)
			t.maxTotal = to
			t.Raises++
			clear(t.acted)
		}

		if t.Remaining(actor) <= 0 {
			t.AllIn[actor] = true
		}
		t.acted[actor] = true
		t.LastActor = actor
		actor = t.nextAble(actor)
	}

	t.NextToAct = actor
	return nil
}

// nextAble returns the first position after p that has not folded and is
// not all in, or -1.
func (t *Table) nextAble(p int) int {
	n := t.Def.NumPlayers
	for i := 1; i <= n; i++ {
		q := ((p+i)%n + n) % n
		if !t.Folded[q] && !t.AllIn[q] {
			return q
		}
	}
	return -1
}

func (t *Table) settle() {
	round := t.State.Round()
	active := t.count(func(p int) bool { return !t.Folded[p] })
	if active <= 1 {
		t.HandEnded = true
	} else if t.roundComplete() && round == t.Def.NumRounds-1 {
		t.HandEnded = true
		t.ReachedShowdown = true
	}

	if t.HandEnded || t.roundComplete() {
		t.NextToAct = -1
	}
	if t.HandEnded {
		t.distribute()
	}
}

// roundComplete reports whether the current round needs no more actions.
func (t *Table) roundComplete() bool {
	able := t.count(func(p int) bool { return !t.Folded[p] && !t.AllIn[p] })
	if able == 0 {
		return true
	}
	if able == 1 {
		return t.AmountToCall(t.nextAble(-1)) == 0
	}

	for p := 0; p < t.Def.NumPlayers; p++ {
		if t.Folded[p] || t.AllIn[p] {
			continue
		}
		if t.AmountToCall(p) > 0 || !t.acted[p] {
			return false
		}
	}
	return true
}

func (t *Table) count(pred func(p int) bool) int {
	c := 0
	for p := 0; p < t.Def.NumPlayers; p++ {
		if pred(p) {
			c++
		}
	}
	return c
}

// Total is what position p put in this hand.
func (t *Table) Total(p int) int {
	total := 0
	for _, c := range t.Contributions[p] {
		total += c
	}
	return total
}

func (t *Table) Remaining(p int) int {
	return t.Def.Stacks[p] - t.Total(p)
}

func (t *Table) AmountToCall(p int) int {
	if p < 0 {
		return 0
	}
	return max(0, min(t.maxTotal-t.Total(p), t.Remaining(p)))
}

func (t *Table) Pot() int {
	pot := 0
	for p := range t.Contributions {
		pot += t.Total(p)
	}
	return pot
}

func (t *Table) PotAtStartOfRound() int {
	pot := 0
	for p := range t.Contributions {
		for round := 0; round < t.State.Round(); round++ {
			pot += t.Contributions[p][round]
		}
	}
	return pot
}

// LegalActions lists what the position next to act may do.
func (t *Table) LegalActions() []LegalAction {
	p := t.NextToAct
	if p < 0 {
		return nil
	}

	round := t.State.Round()
	toCall := t.AmountToCall(p)
	var actions []LegalAction
	if toCall > 0 {
		actions = append(actions, LegalAction{Type: LegalFold}, LegalAction{Type: LegalCall, Cost: toCall})
	} else {
		actions = append(actions, LegalAction{Type: LegalCheck})
	}

	canRaise := t.Remaining(p) > toCall &&
		t.Raises < t.Def.MaxRaises[round] &&
		t.count(func(q int) bool { return q != p && !t.Folded[q] && !t.AllIn[q] }) > 0
	if canRaise {
		cost := toCall + t.Def.RaiseSizes[round]
		if t.Def.NoLimit() {
			cost = toCall + t.LastRaiseSize
		}
		kind := LegalRaise
		if round > 0 && t.Raises == 0 {
			kind = LegalBet
		}
		actions = append(actions, LegalAction{Type: kind, Cost: min(cost, t.Remaining(p))})
	}

	return actions
}

// MinRaiseTo is the smallest raise-to total for the position next to act.
func (t *Table) MinRaiseTo() int {
	if t.NextToAct < 0 {
		return 0
	}
	return min(t.maxTotal+t.LastRaiseSize, t.Def.Stacks[t.NextToAct])
}

// distribute splits the pot between the best hands still in, one layer per
// distinct contribution so all-in players only win what they matched.
func (t *Table) distribute() {
	n := t.Def.NumPlayers
	t.Winnings = make([]int, n)
	t.Descriptions = make([]string, n)

	if !t.ReachedShowdown {
		for p := 0; p < n; p++ {
			if !t.Folded[p] {
				t.Winnings[p] = t.Pot()
			}
		}
		return
	}

	scores := make([]int, n)
	board := t.State.BoardCards()
	for p := 0; p < n; p++ {
		if t.Folded[p] {
			continue
		}
		score, description, err := HandStrength(t.State.HoleCards[p], board)
		if err != nil {
			scores[p] = -1
			continue
		}
		scores[p], t.Descriptions[p] = score, description
	}

	var levels []int
	for p := 0; p < n; p++ {
		if total := t.Total(p); total > 0 && !slices.Contains(levels, total) {
			levels = append(levels, total)
		}
	}
	slices.Sort(levels)

	previous := 0
	var winners []int
	for _, level := range levels {
		layer := 0
		for p := 0; p < n; p++ {
			layer += min(t.Total(p), level) - min(t.Total(p), previous)
		}
		previous = level

		best := -1
		var eligible []int
		for p := 0; p < n; p++ {
			if t.Folded[p] || t.Total(p) < level || scores[p] < 0 {
				continue
			}
			switch {
			case scores[p] > best:
				best, eligible = scores[p], []int{p}
			case scores[p] == best:
				eligible = append(eligible, p)
			}
		}
		if len(eligible) > 0 {
			winners = eligible
		}
		if len(winners) == 0 {
			continue
		}

		share := layer / len(winners)
		for _, w := range winners {
			t.Winnings[w] += share
		}
		t.Winnings[winners[0]] += layer - share*len(winners)
	}
}
