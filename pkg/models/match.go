// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/elliotchance/pie/v2"
	"github.com/mitchellh/copystructure"
	"github.com/oklog/ulid/v2"

	"github.com/AccelByte/extend-table-manager/pkg/config"
	"github.com/AccelByte/extend-table-manager/pkg/constants"
	"github.com/AccelByte/extend-table-manager/pkg/utils"
)

const (
	DefaultUserName     = "Guest"
	DefaultOpponentName = "Tester"

	// matchNameTimeLayout renders like "Mar7_2024-at-9_5_13".
	matchNameTimeLayout = "Jan2_2006-at-15_4_5"
)

// SeatKind tells how a seat is occupied.
type SeatKind string

const (
	SeatKindBot        SeatKind = "bot"
	SeatKindHumanProxy SeatKind = "human_proxy"
)

// Seat is decided once at finalization: either a bot started from its runner
// command or a proxy that relays a human's actions.
type Seat struct {
	Kind                SeatKind `json:"kind"`
	Name                string   `json:"name"`
	Runner              []string `json:"runner,omitempty"`
	RequiresSpecialPort bool     `json:"requires_special_port,omitempty"`
}

func Bot(name string, runner []string, requiresSpecialPort bool) Seat {
	return Seat{
		Kind:                SeatKindBot,
		Name:                name,
		Runner:              slices.Clone(runner),
		RequiresSpecialPort: requiresSpecialPort,
	}
}

func HumanProxy(name string) Seat {
	return Seat{Kind: SeatKindHumanProxy, Name: name}
}

func (s Seat) IsBot() bool {
	return s.Kind == SeatKindBot
}

// Match is the persisted record of one match.
type Match struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	UserName           string `json:"user_name"`
	GameDefinitionKey  string `json:"game_definition_key"`
	GameDefinitionFile string `json:"game_definition_file"`
	NumberOfHands      int    `json:"number_of_hands"`

	// OpponentNames is the request input; Players is resolved from it by Finalize.
	OpponentNames []string `json:"opponent_names,omitempty"`
	Players       []Seat   `json:"players"`
	// Seat is the user's seat, 1-based.
	Seat          int    `json:"seat"`
	RandomSeed    int64  `json:"random_seed"`
	DealerOptions string `json:"dealer_options"`

	PortNumbers []int `json:"port_numbers"`
	DealerPID   int   `json:"dealer_pid"`
	ProxyPID    int   `json:"proxy_pid"`
	// PlayerPIDs holds one pid per seat, zero where nothing was spawned.
	PlayerPIDs []int `json:"player_pids"`

	ReadyToStart        bool `json:"ready_to_start"`
	UnableToStartDealer bool `json:"unable_to_start_dealer"`

	LastSliceViewed int          `json:"last_slice_viewed"`
	Slices          []MatchSlice `json:"slices"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMatch returns an unfinalized match for userName on the given game.
func NewMatch(userName, gameDefinitionKey string) *Match {
	now := time.Now().UTC()
	return &Match{
		ID:                ulid.Make().String(),
		UserName:          userName,
		GameDefinitionKey: gameDefinitionKey,
		RandomSeed:        NewRandomSeed(),
		DealerOptions:     constants.DefaultDealerOptions,
		LastSliceViewed:   -1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// NewName builds "match.<user>[.<game>][.<hands>h][.<seat>s][.<seed>r].<time>", skipping zero values.
func NewName(userName, gameDefinitionKey string, numHands, seat int, seed int64, at time.Time) string {
	var b strings.Builder
	b.WriteString("match.")
	b.WriteString(userName)
	if gameDefinitionKey != "" {
		b.WriteString("." + gameDefinitionKey)
	}
	if numHands > 0 {
		fmt.Fprintf(&b, ".%dh", numHands)
	}
	if seat > 0 {
		fmt.Fprintf(&b, ".%ds", seat)
	}
	if seed > 0 {
		fmt.Fprintf(&b, ".%dr", seed)
	}
	if !at.IsZero() {
		b.WriteString("." + at.Format(matchNameTimeLayout))
	}

	return b.String()
}

// NewRandomSeed returns a seed that fits the dealer's 32 bit seed argument.
func NewRandomSeed() int64 {
	return int64(rand.Uint32())
}

func NewRandomSeat(numPlayers int) int {
	return rand.IntN(numPlayers) + 1
}

func DefaultOpponentNames(numPlayers int) []string {
	names := make([]string, 0, numPlayers-1)
	for i := 1; i < numPlayers; i++ {
		names = append(names, DefaultOpponentName)
	}
	return names
}

// Finalize resolves the seat, players and defaults from the game definition and
// marks the match ready to start.
func (m *Match) Finalize(game config.Game) error {
	m.Name = strings.TrimSpace(m.Name)
	m.UserName = strings.TrimSpace(m.UserName)
	if m.UserName == "" {
		m.UserName = DefaultUserName
	}
	if m.Name == "" {
		m.Name = NewName(m.UserName, m.GameDefinitionKey, 0, 0, 0, time.Now())
	}

	if m.Seat <= 0 {
		m.Seat = NewRandomSeat(game.NumPlayers)
	}
	if m.Seat > game.NumPlayers {
		m.Seat = game.NumPlayers
	}

	m.GameDefinitionFile = game.File
	if m.NumberOfHands <= 0 {
		m.NumberOfHands = game.NumHandsPerMatch
	}
	if m.NumberOfHands <= 0 {
		m.NumberOfHands = 1
	}
	if len(m.OpponentNames) == 0 {
		m.OpponentNames = DefaultOpponentNames(game.NumPlayers)
	}
	if m.DealerOptions == "" {
		m.DealerOptions = constants.DefaultDealerOptions
	}
	if m.LastSliceViewed == 0 && len(m.Slices) == 0 {
		m.LastSliceViewed = -1
	}

	opponents := pie.Map(m.OpponentNames, func(name string) Seat {
		if bot, ok := game.Bot(name); ok {
			return Bot(name, bot.Runner, bot.RequiresSpecialPort)
		}
		return HumanProxy(name)
	})
	if m.Seat-1 > len(opponents) {
		return fmt.Errorf("%w: seat %d with %d opponents", ValidationErrorSeatOutOfRange, m.Seat, len(opponents))
	}
	m.Players = slices.Insert(opponents, m.Seat-1, HumanProxy(m.UserName))
	m.PlayerPIDs = make([]int, len(m.Players))

	if err := m.Validate(game); err != nil {
		return err
	}

	m.ReadyToStart = true
	m.UpdatedAt = time.Now().UTC()

	return nil
}

func (m *Match) Validate(game config.Game) error {
	switch {
	case m.Name == "":
		return ValidationErrorEmptyName
	case m.UserName == "":
		return ValidationErrorEmptyUserName
	case m.GameDefinitionKey == "" || m.GameDefinitionFile == "":
		return ValidationErrorNoGame
	case m.NumberOfHands <= 0:
		return ValidationErrorNumberOfHands
	case m.Seat < 1 || m.Seat > len(m.Players):
		return ValidationErrorSeatOutOfRange
	case len(m.Players) != game.NumPlayers:
		return fmt.Errorf("%w: %d players for a %d player game", ValidationErrorPlayerCount, len(m.Players), game.NumPlayers)
	case m.Players[m.Seat-1].IsBot():
		return ValidationErrorHumanSeat
	}

	return nil
}

func (m *Match) SanitizedName() string {
	return utils.SanitizeToken(m.Name)
}

// PlayerNames are sanitized so they can be passed to the dealer as single arguments.
func (m *Match) PlayerNames() []string {
	return pie.Map(m.Players, func(s Seat) string { return utils.SanitizeToken(s.Name) })
}

// SpecialPortRequirements returns one flag per seat. The user's seat never
// needs a special port since it always connects through its own proxy.
func (m *Match) SpecialPortRequirements() []bool {
	requirements := make([]bool, 0, len(m.Players))
	for i, seat := range m.Players {
		if i == m.Seat-1 {
			continue
		}
		requirements = append(requirements, seat.IsBot() && seat.RequiresSpecialPort)
	}

	return slices.Insert(requirements, m.Seat-1, false)
}

func (m *Match) NumSpecialPortsRequired() int {
	return len(pie.Filter(m.SpecialPortRequirements(), func(b bool) bool { return b }))
}

func (m *Match) Started() bool {
	return len(m.Slices) > 0
}

func (m *Match) Finished() bool {
	return m.Started() && m.Slices[len(m.Slices)-1].MatchEnded
}

// Running reports whether both the dealer and the user's proxy are alive.
func (m *Match) Running(alive func(pid int) bool) bool {
	return m.DealerPID > 0 && alive(m.DealerPID) && m.ProxyPID > 0 && alive(m.ProxyPID)
}

// Defunct matches started and then lost a process before finishing.
func (m *Match) Defunct(alive func(pid int) bool) bool {
	return m.Started() && !m.Running(alive) && !m.Finished()
}

func (m *Match) AllSlicesViewed() bool {
	return m.LastSliceViewed >= len(m.Slices)-1
}

// ProcessIDs lists every recorded pid of the match, dealer first.
func (m *Match) ProcessIDs() []int {
	pids := make([]int, 0, len(m.PlayerPIDs)+2)
	for _, pid := range append([]int{m.DealerPID, m.ProxyPID}, m.PlayerPIDs...) {
		if pid > 0 && !utils.Contains(pids, pid) {
			pids = append(pids, pid)
		}
	}
	return pids
}

// ClearProcesses forgets every pid; only call it once they are confirmed dead.
func (m *Match) ClearProcesses() {
	m.DealerPID = 0
	m.ProxyPID = 0
	for i := range m.PlayerPIDs {
		m.PlayerPIDs[i] = 0
	}
}

// AppendSlice adds a snapshot; history is append-only.
func (m *Match) AppendSlice(slice MatchSlice) {
	m.Slices = append(m.Slices, slice)
	m.UpdatedAt = time.Now().UTC()
}

func (m *Match) Copy() *Match {
	copied, err := copystructure.Copy(m)
	if err != nil {
		panic(fmt.Sprintf("copy match %s: %v", m.ID, err))
	}
	return copied.(*Match)
}

// ProxyID names the channels and log of the proxy for seat (1-based).
func ProxyID(matchID string, seat int) string {
	return fmt.Sprintf("%s.%d", matchID, seat)
}

// ParseProxyID splits an id made by ProxyID.
func ParseProxyID(id string) (matchID string, seat int, err error) {
	i := strings.LastIndexByte(id, '.')
	if i < 1 {
		return "", 0, fmt.Errorf("malformed proxy id %q", id)
	}
	if _, err := fmt.Sscanf(id[i+1:], "%d", &seat); err != nil || seat < 1 {
		return "", 0, fmt.Errorf("malformed proxy id %q", id)
	}

	return id[:i], seat, nil
}
