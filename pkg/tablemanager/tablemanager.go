// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package tablemanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-table-manager/pkg/bus"
	"github.com/AccelByte/extend-table-manager/pkg/constants"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/notifier"
)

var (
	ErrUnknownRequest = errors.New("unknown request")
	ErrMissingParam   = errors.New("missing request parameter")
)

// Request is what clients push on the table manager channel.
type Request struct {
	Request string            `json:"request"`
	Params  map[string]string `json:"params,omitempty"`
	TraceID string            `json:"trace_id,omitempty"`
}

func (r Request) param(key string) (string, error) {
	value := r.Params[key]
	if value == "" {
		return "", fmt.Errorf("%w %q for %s", ErrMissingParam, key, r.Request)
	}
	return value, nil
}

// Maintainer carries out requests.
type Maintainer interface {
	EnqueueMatch(scope *envelope.Scope, matchID string, options string) error
	KillMatch(scope *envelope.Scope, matchID string) error
	StartProxy(scope *envelope.Scope, matchID string) error
	CheckMatch(scope *envelope.Scope, matchID string) error
	CleanUpMatches(scope *envelope.Scope) (int, error)
	Trigger()
}

type TableManager struct {
	maintainer Maintainer
	notifier   notifier.Notifier
}

func New(m Maintainer, n notifier.Notifier) *TableManager {
	if n == nil {
		n = notifier.LogNotifier{}
	}
	return &TableManager{maintainer: m, notifier: n}
}

// Perform dispatches one request. Errors and panics are reported and
// returned; they never escape as panics.
func (tm *TableManager) Perform(rootScope *envelope.Scope, request Request) (err error) {
	scope := rootScope.WithMatch("tablemanager.Perform", request.Params[constants.MatchIDKey], "")
	defer scope.Finish()
	scope.SetAttributes("request", request.Request)
	scope.Log = scope.Log.WithField("request", request.Request)

	source := "table manager " + request.Request
	defer notifier.Recover(scope, tm.notifier, source, &err)

	if err = tm.perform(scope, request); err != nil {
		tm.notifier.Notify(scope, source, err)
		return err
	}

	scope.Log.Debug("request performed")
	return nil
}

func (tm *TableManager) perform(scope *envelope.Scope, request Request) error {
	if request.Request == constants.DeleteIrrelevantMatchesRequest {
		deleted, err := tm.maintainer.CleanUpMatches(scope)
		scope.Log.WithField("deleted", deleted).Info("irrelevant matches deleted")
		return err
	}

	matchID, err := request.param(constants.MatchIDKey)
	if err != nil {
		return err
	}

	switch request.Request {
	case constants.StartMatchRequest:
		return tm.maintainer.EnqueueMatch(scope, matchID, request.Params[constants.OptionsKey])
	case constants.StartProxyRequest:
		return tm.maintainer.StartProxy(scope, matchID)
	case constants.KillMatchRequest:
		err := tm.maintainer.KillMatch(scope, matchID)
		tm.maintainer.Trigger()
		return err
	case constants.CheckMatchRequest:
		return tm.maintainer.CheckMatch(scope, matchID)
	}

	return fmt.Errorf("%w %q", ErrUnknownRequest, request.Request)
}

// Listener pops requests off a bus channel and performs them one at a time.
type Listener struct {
	Bus     bus.Bus
	Channel string
	Manager *TableManager
	// PollTimeout bounds each blocking pop so cancellation is noticed.
	PollTimeout time.Duration
}

func (l *Listener) Run(ctx context.Context) error {
	logrus.WithField("channel", l.Channel).Info("listening for table manager requests")
	for {
		payload, err := l.Bus.Pop(ctx, l.Channel, l.PollTimeout)
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, bus.ErrTimeout):
			continue
		case err != nil:
			logrus.WithError(err).Error("unable to read table manager request")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(l.PollTimeout):
			}
			continue
		}

		l.handle(ctx, payload)
	}
}

func (l *Listener) handle(ctx context.Context, payload []byte) {
	var request Request
	if err := json.Unmarshal(payload, &request); err != nil {
		scope := envelope.NewRootScope(ctx, "tablemanager.Decode", "")
		defer scope.Finish()
		l.Manager.notifier.Notify(scope, "table manager", fmt.Errorf("decode request: %w", err))
		return
	}

	scope := envelope.NewRootScope(ctx, "tablemanager.Request", request.TraceID)
	defer scope.Finish()
	_ = l.Manager.Perform(scope, request)
}

// Submit pushes a request for a listener to perform.
func Submit(ctx context.Context, b bus.Bus, channel string, request Request) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return err
	}
	return b.Push(ctx, channel, payload)
}
