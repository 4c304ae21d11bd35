// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package notifier

import (
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-table-manager/pkg/bus"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
)

// Notifier reports failures an operator has to look at.
type Notifier interface {
	Notify(scope *envelope.Scope, source string, err error)
}

// Report is the payload pushed to the error report channel.
type Report struct {
	Source  string    `json:"source"`
	Error   string    `json:"error"`
	TraceID string    `json:"trace_id"`
	Time    time.Time `json:"time"`
}

// LogNotifier only logs.
type LogNotifier struct{}

func (LogNotifier) Notify(scope *envelope.Scope, source string, err error) {
	if err == nil {
		return
	}
	scope.RecordError(err)
	scope.Log.WithError(err).WithField("source", source).Error("operator notified")
}

// BusNotifier pushes a Report to a bus channel and logs it.
type BusNotifier struct {
	Bus     bus.Bus
	Channel string
	Now     func() time.Time
}

func NewBusNotifier(b bus.Bus, channel string) *BusNotifier {
	return &BusNotifier{Bus: b, Channel: channel, Now: time.Now}
}

func (n *BusNotifier) Notify(scope *envelope.Scope, source string, err error) {
	if err == nil {
		return
	}
	LogNotifier{}.Notify(scope, source, err)

	payload, marshalErr := json.Marshal(Report{
		Source:  source,
		Error:   err.Error(),
		TraceID: scope.TraceID,
		Time:    n.Now().UTC(),
	})
	if marshalErr != nil {
		scope.Log.WithError(marshalErr).Error("unable to encode error report")
		return
	}
	if pushErr := n.Bus.Push(scope.Ctx, n.Channel, payload); pushErr != nil {
		scope.Log.WithError(pushErr).WithField("channel", n.Channel).Error("unable to push error report")
	}
}

// Recover turns a panic into an error reported through n. Use it deferred.
func Recover(scope *envelope.Scope, n Notifier, source string, errp *error) {
	r := recover()
	if r == nil {
		return
	}

	err := fmt.Errorf("panic in %s: %v", source, r)
	scope.Log.WithFields(logrus.Fields{
		"panic":  r,
		"source": source,
		"stack":  string(debug.Stack()),
	}).Error("recovered")
	if n != nil {
		n.Notify(scope, source, err)
	}
	if errp != nil {
		*errp = err
	}
}
