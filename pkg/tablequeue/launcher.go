// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package tablequeue

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/models"
	"github.com/AccelByte/extend-table-manager/pkg/process"
	"github.com/AccelByte/extend-table-manager/pkg/utils"
)

// Launcher turns a match into dealer, opponent and proxy commands.
type Launcher struct {
	Supervisor        process.Supervisor
	DealerCommand     string
	ProxyCommand      string
	ConfigReference   string
	DealerHost        string
	LogDirectory      string
	MatchLogDirectory string
}

func (l Launcher) StartDealer(scope *envelope.Scope, match *models.Match, ports []int) (process.DealerInfo, error) {
	runner := process.DealerRunner{
		Supervisor:   l.Supervisor,
		Command:      l.DealerCommand,
		LogDirectory: l.MatchLogDirectory,
	}

	return runner.Start(scope, process.DealerArguments{
		MatchName:          match.SanitizedName(),
		GameDefinitionFile: match.GameDefinitionFile,
		NumberOfHands:      match.NumberOfHands,
		RandomSeed:         match.RandomSeed,
		PlayerNames:        match.PlayerNames(),
		Options:            utils.SplitOptions(match.DealerOptions),
	}, ports)
}

// StartPlayer spawns whatever occupies seatIndex (0-based): the bot's runner
// with the dealer host and port appended, or a proxy.
func (l Launcher) StartPlayer(scope *envelope.Scope, match *models.Match, seatIndex int, port int) (int, error) {
	if seatIndex < 0 || seatIndex >= len(match.Players) {
		return 0, fmt.Errorf("seat index %d out of range for match %s", seatIndex, match.ID)
	}

	seat := match.Players[seatIndex]
	var cmd process.Command
	if seat.IsBot() {
		cmd = process.Command{
			Kind:    process.KindOpponent,
			Path:    seat.Runner[0],
			Args:    append(append([]string{}, seat.Runner[1:]...), l.DealerHost, strconv.Itoa(port)),
			LogFile: filepath.Join(l.LogDirectory, "opponents", fmt.Sprintf("%s.%d.%s.log", match.SanitizedName(), seatIndex+1, utils.SanitizeToken(seat.Name))),
		}
	} else {
		cmd = l.proxyCommand(match, seatIndex, port)
	}

	spawned, err := l.Supervisor.Spawn(scope, cmd)
	if err != nil {
		return 0, err
	}

	return spawned.PID, nil
}

func (l Launcher) proxyCommand(match *models.Match, seatIndex int, port int) process.Command {
	id := models.ProxyID(match.ID, seatIndex+1)

	return process.Command{
		Kind: process.KindProxy,
		Path: l.ProxyCommand,
		Args: []string{
			"-t", l.ConfigReference,
			"-i", id,
			"-p", strconv.Itoa(port),
			"-s", strconv.Itoa(seatIndex + 1),
		},
		LogFile: filepath.Join(l.LogDirectory, "proxies", id+".log"),
	}
}

func (l Launcher) Kill(scope *envelope.Scope, pid int) error {
	return l.Supervisor.Kill(scope, pid)
}

func (l Launcher) IsAlive(pid int) bool {
	return l.Supervisor.IsAlive(pid)
}
