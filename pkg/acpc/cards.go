// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package acpc

import (
	"fmt"
	"strings"

	"github.com/paulhankin/poker"
)

const (
	rankChars = "23456789TJQKA"
	// suitChars follows poker.Suit order: clubs, diamonds, hearts, spades.
	suitChars = "cdhs"
)

func rankIndex(card string) int {
	return strings.IndexByte(rankChars, card[0])
}

func toPokerCard(card string) (poker.Card, error) {
	var none poker.Card
	if len(card) != 2 {
		return none, fmt.Errorf("malformed card %q", card)
	}
	r, s := rankIndex(card), strings.IndexByte(suitChars, card[1])
	if r < 0 || s < 0 {
		return none, fmt.Errorf("malformed card %q", card)
	}

	// poker.Rank counts the ace as 1
	rank := poker.Rank(r + 2)
	if card[0] == 'A' {
		rank = poker.Rank(1)
	}

	return poker.MakeCard(poker.Suit(s), rank)
}

// HandStrength scores hole cards with the board; higher is better.
// Seven card hands use the full evaluator; smaller games compare pairs
// with the board, then the highest hole card.
func HandStrength(hole, board []string) (score int, description string, err error) {
	if len(hole)+len(board) == 7 {
		var hand [7]poker.Card
		for i, card := range append(append([]string{}, hole...), board...) {
			if hand[i], err = toPokerCard(card); err != nil {
				return 0, "", err
			}
		}
		description, err = poker.Describe(hand[:])
		if err != nil {
			return 0, "", err
		}
		return int(poker.Eval7(&hand)), description, nil
	}

	if len(hole) == 0 {
		return 0, "", fmt.Errorf("no hole cards")
	}
	high := -1
	for _, card := range hole {
		high = max(high, rankIndex(card))
	}
	for _, card := range board {
		for _, h := range hole {
			if card[0] == h[0] {
				return 100 + rankIndex(h), "a pair of " + string(h[0]) + "s", nil
			}
		}
	}
	return high, string(rankChars[high]) + " high", nil
}
