// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package process

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/elliotchance/pie/v2"

	"github.com/AccelByte/extend-table-manager/pkg/envelope"
)

const (
	KindDealer   = "dealer"
	KindOpponent = "opponent"
	KindProxy    = "proxy"
)

var ErrDealerBanner = errors.New("dealer did not report its ports")

// DealerArguments are the positional dealer arguments, already sanitized.
type DealerArguments struct {
	MatchName          string
	GameDefinitionFile string
	NumberOfHands      int
	RandomSeed         int64
	PlayerNames        []string
	Options            []string
}

// Args renders the dealer command line. A zero port lets the dealer pick one.
func (d DealerArguments) Args(ports []int) []string {
	args := []string{
		d.MatchName,
		d.GameDefinitionFile,
		strconv.Itoa(d.NumberOfHands),
		strconv.FormatInt(d.RandomSeed, 10),
	}
	args = append(args, d.PlayerNames...)
	args = append(args, d.Options...)
	if len(ports) > 0 {
		args = append(args, "-p", strings.Join(pie.Map(ports, strconv.Itoa), ","))
	}

	return args
}

type DealerInfo struct {
	PID         int
	PortNumbers []int
}

// DealerRunner starts dealers through a Supervisor.
type DealerRunner struct {
	Supervisor   Supervisor
	Command      string
	LogDirectory string
}

// Start spawns the dealer in the match log directory and reads back the ports it bound.
func (r DealerRunner) Start(rootScope *envelope.Scope, args DealerArguments, ports []int) (DealerInfo, error) {
	scope := rootScope.NewChildScope("process.StartDealer")
	defer scope.Finish()

	spawned, err := r.Supervisor.Spawn(scope, Command{
		Kind:       KindDealer,
		Path:       r.Command,
		Args:       args.Args(ports),
		Dir:        r.LogDirectory,
		LogFile:    filepath.Join(r.LogDirectory, args.MatchName+".dealer.log"),
		ReadBanner: true,
	})
	if err != nil {
		return DealerInfo{}, err
	}

	bound, err := ParsePorts(spawned.Banner)
	if err == nil && len(bound) != len(args.PlayerNames) {
		err = fmt.Errorf("%w: %d ports for %d players", ErrDealerBanner, len(bound), len(args.PlayerNames))
	}
	if err != nil {
		scope.RecordError(err)
		if killErr := r.Supervisor.Kill(scope, spawned.PID); killErr != nil {
			return DealerInfo{}, errors.Join(err, killErr)
		}
		return DealerInfo{}, err
	}

	return DealerInfo{PID: spawned.PID, PortNumbers: bound}, nil
}

// ParsePorts reads the whitespace separated port list the dealer prints on startup.
func ParsePorts(banner string) ([]int, error) {
	fields := strings.Fields(banner)
	if len(fields) == 0 {
		return nil, ErrDealerBanner
	}

	ports := make([]int, 0, len(fields))
	for _, field := range fields {
		port, err := strconv.Atoi(field)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("%w: %q", ErrDealerBanner, banner)
		}
		ports = append(ports, port)
	}

	return ports, nil
}
