// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	validator "github.com/AccelByte/justice-input-validation-go"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoGames              = errors.New("exhibition config declares no games")
	ErrDuplicateSpecialPort = errors.New("special port listed more than once")
	ErrUnknownGame          = errors.New("unknown game")
	ErrOpponentRunner       = errors.New("opponent has no runner command")
)

// Exhibition describes the games that may be played and the bots available for each.
type Exhibition struct {
	SpecialPortsToDealer []int           `yaml:"special_ports_to_dealer"`
	Games                map[string]Game `yaml:"games"`
}

type Game struct {
	File             string              `yaml:"file"                valid:"required"`
	NumHandsPerMatch int                 `yaml:"num_hands_per_match" valid:"range(1|1000000)"`
	NumPlayers       int                 `yaml:"num_players"         valid:"range(2|10)"`
	MaxNumMatches    int                 `yaml:"max_num_matches"     valid:"range(0|10000)" optional:"true"`
	Opponents        map[string]Opponent `yaml:"opponents"           valid:"-"`
}

// Opponent is a bot that can fill a seat. The runner is invoked with the dealer host and port appended.
type Opponent struct {
	Runner              []string `yaml:"runner"`
	RequiresSpecialPort bool     `yaml:"requires_special_port"`
}

// LoadExhibition reads and validates an exhibition file. Unknown keys are rejected.
func LoadExhibition(path string) (*Exhibition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	return ParseExhibition(f, filepath.Dir(abs))
}

// ParseExhibition decodes YAML, expanding %{pwd} to dir and %{home} to the user's home directory.
func ParseExhibition(r io.Reader, dir string) (*Exhibition, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	home, _ := os.UserHomeDir()
	expanded := strings.NewReplacer("%{pwd}", dir, "%{home}", home, "%{~}", home).Replace(string(raw))

	decoder := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	decoder.KnownFields(true)

	var exhibition Exhibition
	if err := decoder.Decode(&exhibition); err != nil {
		return nil, fmt.Errorf("decode exhibition config: %w", err)
	}
	if err := exhibition.Validate(); err != nil {
		return nil, err
	}

	return &exhibition, nil
}

func (e *Exhibition) Validate() error {
	if len(e.Games) == 0 {
		return ErrNoGames
	}

	seen := make(map[int]struct{}, len(e.SpecialPortsToDealer))
	for _, port := range e.SpecialPortsToDealer {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("special port %d out of range", port)
		}
		if _, ok := seen[port]; ok {
			return fmt.Errorf("%w: %d", ErrDuplicateSpecialPort, port)
		}
		seen[port] = struct{}{}
	}

	for key, game := range e.Games {
		if _, err := validator.ValidateStruct(game); err != nil {
			return fmt.Errorf("game %q: %w", key, err)
		}
		for name, opponent := range game.Opponents {
			if len(opponent.Runner) == 0 || strings.TrimSpace(opponent.Runner[0]) == "" {
				return fmt.Errorf("game %q opponent %q: %w", key, name, ErrOpponentRunner)
			}
		}
	}

	return nil
}

// Game returns the definition registered under key.
func (e *Exhibition) Game(key string) (Game, error) {
	game, ok := e.Games[key]
	if !ok {
		return Game{}, fmt.Errorf("%w %q, registered games: %v", ErrUnknownGame, key, e.GameKeys())
	}

	return game, nil
}

// GameKeys returns the registered game keys in a stable order.
func (e *Exhibition) GameKeys() []string {
	keys := make([]string, 0, len(e.Games))
	for key := range e.Games {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys
}

// Bot looks up an opponent by player name; ok is false for names that are not bots.
func (g Game) Bot(name string) (Opponent, bool) {
	opponent, ok := g.Opponents[name]
	return opponent, ok
}
