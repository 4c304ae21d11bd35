// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package process

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-table-manager/pkg/envelope"
)

// Pair is the dealer and proxy recorded for one match.
type Pair struct {
	MatchID   string
	DealerPID int
	ProxyPID  int
}

// KillOrphans tears down half-dead matches: a proxy whose dealer is gone can
// never finish, and a dealer whose proxy died waits forever for its player.
// A pid of zero means the process was never started and is not an orphan.
func KillOrphans(rootScope *envelope.Scope, supervisor Supervisor, pairs []Pair) (killed []int, err error) {
	scope := rootScope.NewChildScope("process.KillOrphans")
	defer scope.Finish()

	var errs []error
	for _, pair := range pairs {
		dealerAlive := supervisor.IsAlive(pair.DealerPID)
		proxyAlive := supervisor.IsAlive(pair.ProxyPID)

		var orphan int
		switch {
		case proxyAlive && !dealerAlive && pair.DealerPID > 0:
			orphan = pair.ProxyPID
		case dealerAlive && !proxyAlive && pair.ProxyPID > 0:
			orphan = pair.DealerPID
		default:
			continue
		}

		scope.Log.WithFields(logrus.Fields{
			envelope.MatchIDLogField: pair.MatchID,
			envelope.PIDLogField:     orphan,
		}).Warn("killing orphaned process")
		if killErr := supervisor.Kill(scope, orphan); killErr != nil {
			errs = append(errs, killErr)
			continue
		}
		killed = append(killed, orphan)
	}

	return killed, errors.Join(errs...)
}
