// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package acpc

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	MatchStateLabel = "MATCHSTATE"

	// Wire actions. Check and bet are sent as call and raise.
	WireFold  = 'f'
	WireCall  = 'c'
	WireRaise = 'r'
)

var ErrMatchState = errors.New("invalid match state")

// Action is one betting action as the dealer reports it. Amount is the
// raise-to total in no-limit games and zero otherwise.
type Action struct {
	Type   byte
	Amount int
}

func (a Action) String() string {
	if a.Type == WireRaise && a.Amount > 0 {
		return string(a.Type) + strconv.Itoa(a.Amount)
	}
	return string(a.Type)
}

// MatchState is a parsed MATCHSTATE line.
type MatchState struct {
	Raw        string
	Position   int
	HandNumber int
	// Betting holds one action list per round reached, the current one last.
	Betting [][]Action
	// HoleCards holds one entry per position; empty when hidden.
	HoleCards [][]string
	// Board holds the cards revealed in each round after the first.
	Board [][]string
}

// ParseMatchState parses MATCHSTATE:<position>:<hand>:<betting>:<cards>.
func ParseMatchState(raw string) (MatchState, error) {
	raw = strings.TrimSpace(raw)
	parts := strings.SplitN(raw, ":", 5)
	if len(parts) != 5 || parts[0] != MatchStateLabel {
		return MatchState{}, fmt.Errorf("%w: %q", ErrMatchState, raw)
	}

	position, err := strconv.Atoi(parts[1])
	if err != nil || position < 0 {
		return MatchState{}, fmt.Errorf("%w: position in %q", ErrMatchState, raw)
	}
	hand, err := strconv.Atoi(parts[2])
	if err != nil || hand < 0 {
		return MatchState{}, fmt.Errorf("%w: hand number in %q", ErrMatchState, raw)
	}

	state := MatchState{Raw: raw, Position: position, HandNumber: hand}
	if state.Betting, err = parseBetting(parts[3]); err != nil {
		return MatchState{}, fmt.Errorf("%w: %v in %q", ErrMatchState, err, raw)
	}

	rounds := strings.Split(parts[4], "/")
	for _, hand := range strings.Split(rounds[0], "|") {
		cards, err := parseCards(hand)
		if err != nil {
			return MatchState{}, fmt.Errorf("%w: %v in %q", ErrMatchState, err, raw)
		}
		state.HoleCards = append(state.HoleCards, cards)
	}
	for _, board := range rounds[1:] {
		cards, err := parseCards(board)
		if err != nil {
			return MatchState{}, fmt.Errorf("%w: %v in %q", ErrMatchState, err, raw)
		}
		state.Board = append(state.Board, cards)
	}
	if position >= len(state.HoleCards) {
		return MatchState{}, fmt.Errorf("%w: position %d without hole cards in %q", ErrMatchState, position, raw)
	}

	return state, nil
}

func parseBetting(s string) ([][]Action, error) {
	rounds := [][]Action{}
	for _, round := range strings.Split(s, "/") {
		actions := []Action{}
		for i := 0; i < len(round); {
			action := Action{Type: round[i]}
			i++
			switch action.Type {
			case WireFold, WireCall:
			case WireRaise:
				j := i
				for j < len(round) && round[j] >= '0' && round[j] <= '9' {
					j++
				}
				if j > i {
					action.Amount, _ = strconv.Atoi(round[i:j])
				}
				i = j
			default:
				return nil, fmt.Errorf("unknown action %q", action.Type)
			}
			actions = append(actions, action)
		}
		rounds = append(rounds, actions)
	}

	return rounds, nil
}

func parseCards(s string) ([]string, error) {
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("malformed cards %q", s)
	}
	cards := make([]string, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		card := s[i : i+2]
		if strings.IndexByte(rankChars, card[0]) < 0 || strings.IndexByte(suitChars, card[1]) < 0 {
			return nil, fmt.Errorf("malformed card %q", card)
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func (m MatchState) String() string {
	return m.Raw
}

// Round is the 0-based index of the current betting round.
func (m MatchState) Round() int {
	return len(m.Betting) - 1
}

func (m MatchState) FirstStateOfRound() bool {
	return len(m.Betting[m.Round()]) == 0
}

func (m MatchState) FirstStateOfFirstRound() bool {
	return m.Round() == 0 && m.FirstStateOfRound()
}

// LastAction returns the most recent action in the hand.
func (m MatchState) LastAction() (Action, bool) {
	for round := m.Round(); round >= 0; round-- {
		if actions := m.Betting[round]; len(actions) > 0 {
			return actions[len(actions)-1], true
		}
	}
	return Action{}, false
}

// BoardCards flattens the board.
func (m MatchState) BoardCards() []string {
	var cards []string
	for _, round := range m.Board {
		cards = append(cards, round...)
	}
	return cards
}

// Reply formats the line a player sends to act in this state.
func (m MatchState) Reply(action Action) string {
	return m.Raw + ":" + action.String()
}
