// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-table-manager/pkg/bus"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/testsetup"
)

func testScope() *envelope.Scope {
	return envelope.NewRootScope(context.Background(), "test", "")
}

func TestBusNotifier_PushesReport(t *testing.T) {
	b := bus.NewMemoryBus()
	at := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	n := NewBusNotifier(b, "errors")
	n.Now = func() time.Time { return at }
	scope := testScope()

	n.Notify(scope, "maintainer", errors.New("dealer leaked"))

	payload, err := b.Pop(context.Background(), "errors", time.Second)
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.Unmarshal(payload, &report))
	assert.Equal(t, Report{Source: "maintainer", Error: "dealer leaked", TraceID: scope.TraceID, Time: at}, report)
}

func TestBusNotifier_IgnoresNil(t *testing.T) {
	b := bus.NewMemoryBus()

	NewBusNotifier(b, "errors").Notify(testScope(), "maintainer", nil)

	assert.Zero(t, b.Len("errors"))
}

func TestRecover_ReportsPanic(t *testing.T) {
	b := bus.NewMemoryBus()
	n := NewBusNotifier(b, "errors")

	run := func() (err error) {
		defer Recover(testScope(), n, "tick", &err)
		panic("boom")
	}

	err := run()

	assert.EqualError(t, err, "panic in tick: boom")
	assert.Equal(t, 1, b.Len("errors"))
}

func TestRecover_LogsSourceAndStack(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	scope := testsetup.NewTestScopeWithLogger(logger)

	run := func() (err error) {
		defer Recover(scope, nil, "tick", &err)
		var queues map[string][]int
		queues["holdem"][0] = 1
		return nil
	}

	require.Error(t, run())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, "tick", entry.Data["source"])
	assert.Equal(t, scope.TraceID, entry.Data["traceID"])
	assert.Contains(t, entry.Data["stack"], "notifier.TestRecover_LogsSourceAndStack")
}
