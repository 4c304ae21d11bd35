// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"slices"
	"time"
)

// Action codes accepted from clients, in the dealer's wire alphabet.
const (
	ActionFold  = "f"
	ActionCall  = "c"
	ActionCheck = "k"
	ActionBet   = "b"
	ActionRaise = "r"
)

// MaskedCard stands in for a hole card the viewer may not see.
const MaskedCard = "__"

type LegalAction struct {
	Type string `json:"type"`
	Cost int    `json:"cost"`
}

// PlayerView is one seat as seen from the proxied seat.
type PlayerView struct {
	Name string `json:"name"`
	// Seat is 0-based, matching the dealer's numbering.
	Seat              int      `json:"seat"`
	ChipStack         int      `json:"chip_stack"`
	ChipContributions []int    `json:"chip_contributions"`
	ChipBalance       int      `json:"chip_balance"`
	HoleCards         []string `json:"hole_cards"`
	Winnings          int      `json:"winnings"`
	Folded            bool     `json:"folded"`
	Dealer            bool     `json:"dealer"`
	Acting            bool     `json:"acting"`
}

// MatchSlice is an immutable snapshot of one dealer notification.
type MatchSlice struct {
	StateString       string        `json:"state_string"`
	HandEnded         bool          `json:"hand_ended"`
	MatchEnded        bool          `json:"match_ended"`
	HandIndex         int           `json:"hand_index"`
	SeatNextToAct     int           `json:"seat_next_to_act"`
	AmountToCall      int           `json:"amount_to_call"`
	BoardCards        []string      `json:"board_cards"`
	PotAtStartOfRound int           `json:"pot_at_start_of_round"`
	Players           []PlayerView  `json:"players"`
	LegalActions      []LegalAction `json:"legal_actions"`
	Messages          []string      `json:"messages"`
	CreatedAt         time.Time     `json:"created_at"`
}

// Update is what a proxy publishes to its client for each state.
type Update struct {
	HandEnded         bool          `json:"hand_ended"`
	MatchEnded        bool          `json:"match_ended"`
	HandIndex         int           `json:"hand_index"`
	StateIndex        int           `json:"state_index"`
	LegalActions      []LegalAction `json:"legal_actions"`
	BoardCards        []string      `json:"board_cards"`
	PotAtStartOfRound int           `json:"pot_at_start_of_round"`
	Players           []PlayerView  `json:"players"`
	Messages          []string      `json:"messages"`
}

// Update stamps the slice with the next state index.
func (s MatchSlice) Update(stateIndex int) Update {
	return Update{
		HandEnded:         s.HandEnded,
		MatchEnded:        s.MatchEnded,
		HandIndex:         s.HandIndex,
		StateIndex:        stateIndex,
		LegalActions:      slices.Clone(s.LegalActions),
		BoardCards:        slices.Clone(s.BoardCards),
		PotAtStartOfRound: s.PotAtStartOfRound,
		Players:           slices.Clone(s.Players),
		Messages:          slices.Clone(s.Messages),
	}
}

// CanAct reports whether action is one of the legal actions.
func (s MatchSlice) CanAct(action string) bool {
	return slices.ContainsFunc(s.LegalActions, func(a LegalAction) bool { return a.Type == action })
}

// ClientMessage is what a client sends to its proxy.
type ClientMessage struct {
	Resend bool   `json:"resend,omitempty"`
	Kill   bool   `json:"kill,omitempty"`
	Action string `json:"action,omitempty"`
}
