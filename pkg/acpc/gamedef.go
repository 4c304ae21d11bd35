// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package acpc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const (
	BettingLimit   = "limit"
	BettingNoLimit = "nolimit"

	// DefaultStack is what the dealer assumes when a game gives no stack.
	DefaultStack = math.MaxInt32
	// DefaultMaxRaises means no cap.
	DefaultMaxRaises = 255
)

var ErrGameDef = errors.New("invalid game definition")

// GameDef is a parsed dealer game definition. Per-position slices are
// indexed by position in the hand, per-round slices by round.
type GameDef struct {
	BettingType   string
	NumPlayers    int
	NumRounds     int
	Stacks        []int
	Blinds        []int
	RaiseSizes    []int
	FirstPlayers  []int // 0-based
	MaxRaises     []int
	NumSuits      int
	NumRanks      int
	NumHoleCards  int
	NumBoardCards []int
}

func LoadGameDef(path string) (*GameDef, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	def, err := ParseGameDef(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// ParseGameDef reads the GAMEDEF ... END GAMEDEF block. Keys are case-insensitive.
func ParseGameDef(r io.Reader) (*GameDef, error) {
	def := &GameDef{BettingType: BettingLimit, NumSuits: 4, NumRanks: 13, NumHoleCards: 2}

	scanner := bufio.NewScanner(r)
	inside := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		lower := strings.ToLower(line)
		switch {
		case lower == "gamedef":
			inside = true
			continue
		case lower == "end gamedef":
			inside = false
			continue
		case !inside:
			continue
		case lower == BettingLimit || lower == BettingNoLimit:
			def.BettingType = lower
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("%w: unexpected line %q", ErrGameDef, line)
		}
		values, err := parseInts(value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrGameDef, strings.TrimSpace(key), err)
		}
		if err := def.set(strings.ToLower(strings.TrimSpace(key)), values); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	def.fillDefaults()
	if err := def.validate(); err != nil {
		return nil, err
	}

	return def, nil
}

func parseInts(value string) ([]int, error) {
	fields := strings.Fields(value)
	values := make([]int, 0, len(fields))
	for _, field := range fields {
		v, err := strconv.Atoi(field)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func (g *GameDef) set(key string, values []int) error {
	first := func() int {
		if len(values) == 0 {
			return 0
		}
		return values[0]
	}

	switch key {
	case "numplayers":
		g.NumPlayers = first()
	case "numrounds":
		g.NumRounds = first()
	case "stack":
		g.Stacks = values
	case "blind":
		g.Blinds = values
	case "raisesize":
		g.RaiseSizes = values
	case "firstplayer":
		g.FirstPlayers = make([]int, len(values))
		for i, v := range values {
			g.FirstPlayers[i] = v - 1
		}
	case "maxraises":
		g.MaxRaises = values
	case "numsuits":
		g.NumSuits = first()
	case "numranks":
		g.NumRanks = first()
	case "numholecards":
		g.NumHoleCards = first()
	case "numboardcards":
		g.NumBoardCards = values
	default:
		return fmt.Errorf("%w: unknown key %q", ErrGameDef, key)
	}

	return nil
}

func (g *GameDef) fillDefaults() {
	g.Stacks = padded(g.Stacks, g.NumPlayers, DefaultStack)
	g.Blinds = padded(g.Blinds, g.NumPlayers, 0)
	g.RaiseSizes = padded(g.RaiseSizes, g.NumRounds, 0)
	g.FirstPlayers = padded(g.FirstPlayers, g.NumRounds, 0)
	g.MaxRaises = padded(g.MaxRaises, g.NumRounds, DefaultMaxRaises)
	g.NumBoardCards = padded(g.NumBoardCards, g.NumRounds, 0)
}

func padded(values []int, n int, fill int) []int {
	out := make([]int, n)
	for i := range out {
		if i < len(values) {
			out[i] = values[i]
		} else {
			out[i] = fill
		}
	}
	return out
}

func (g *GameDef) validate() error {
	switch {
	case g.NumPlayers < 2:
		return fmt.Errorf("%w: numPlayers must be at least 2", ErrGameDef)
	case g.NumRounds < 1:
		return fmt.Errorf("%w: numRounds must be at least 1", ErrGameDef)
	case g.NumHoleCards < 1:
		return fmt.Errorf("%w: numHoleCards must be at least 1", ErrGameDef)
	}
	for _, p := range g.FirstPlayers {
		if p < 0 || p >= g.NumPlayers {
			return fmt.Errorf("%w: firstPlayer out of range", ErrGameDef)
		}
	}
	if !g.NoLimit() {
		for round, size := range g.RaiseSizes {
			if size <= 0 {
				return fmt.Errorf("%w: limit game needs a raiseSize for round %d", ErrGameDef, round)
			}
		}
	}

	return nil
}

func (g *GameDef) NoLimit() bool {
	return g.BettingType == BettingNoLimit
}

// BigBlind is the largest blind.
func (g *GameDef) BigBlind() int {
	big := 0
	for _, b := range g.Blinds {
		big = max(big, b)
	}
	return big
}

// SeatOf maps a position in handIndex to a seat. The dealer moves every
// player one position per hand.
func SeatOf(position, handIndex, numPlayers int) int {
	return (position + handIndex) % numPlayers
}

func PositionOf(seat, handIndex, numPlayers int) int {
	return ((seat-handIndex)%numPlayers + numPlayers) % numPlayers
}
