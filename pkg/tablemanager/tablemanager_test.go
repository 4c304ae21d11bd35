// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package tablemanager

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/extend-table-manager/pkg/bus"
	"github.com/AccelByte/extend-table-manager/pkg/constants"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/testsetup"
)

type call struct {
	op      string
	matchID string
	options string
}

type fakeMaintainer struct {
	mu       sync.Mutex
	calls    []call
	triggers int
	err      error
	panicOn  string
}

func (m *fakeMaintainer) record(op, matchID, options string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if op == m.panicOn {
		panic("boom")
	}
	m.calls = append(m.calls, call{op, matchID, options})
	return m.err
}

func (m *fakeMaintainer) recorded() []call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]call(nil), m.calls...)
}

func (m *fakeMaintainer) EnqueueMatch(scope *envelope.Scope, matchID string, options string) error {
	return m.record("enqueue", matchID, options)
}

func (m *fakeMaintainer) KillMatch(scope *envelope.Scope, matchID string) error {
	return m.record("kill", matchID, "")
}

func (m *fakeMaintainer) StartProxy(scope *envelope.Scope, matchID string) error {
	return m.record("start_proxy", matchID, "")
}

func (m *fakeMaintainer) CheckMatch(scope *envelope.Scope, matchID string) error {
	return m.record("check", matchID, "")
}

func (m *fakeMaintainer) CleanUpMatches(scope *envelope.Scope) (int, error) {
	return 3, m.record("clean", "", "")
}

func (m *fakeMaintainer) Trigger() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.triggers++
}

type recordingNotifier struct {
	mu      sync.Mutex
	sources []string
}

func (n *recordingNotifier) Notify(scope *envelope.Scope, source string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sources = append(n.sources, source)
}

func (n *recordingNotifier) reported() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sources...)
}

func params(matchID string) map[string]string {
	return map[string]string{constants.MatchIDKey: matchID}
}

func TestPerform_Dispatch(t *testing.T) {
	tests := []struct {
		name    string
		request Request
		want    call
	}{
		{
			name: "start match",
			request: Request{Request: constants.StartMatchRequest, Params: map[string]string{
				constants.MatchIDKey: "m1",
				constants.OptionsKey: "-a --t_response 1000",
			}},
			want: call{"enqueue", "m1", "-a --t_response 1000"},
		},
		{
			name:    "start proxy",
			request: Request{Request: constants.StartProxyRequest, Params: params("m1")},
			want:    call{"start_proxy", "m1", ""},
		},
		{
			name:    "kill match",
			request: Request{Request: constants.KillMatchRequest, Params: params("m1")},
			want:    call{"kill", "m1", ""},
		},
		{
			name:    "check match",
			request: Request{Request: constants.CheckMatchRequest, Params: params("m1")},
			want:    call{"check", "m1", ""},
		},
		{
			name:    "delete irrelevant matches",
			request: Request{Request: constants.DeleteIrrelevantMatchesRequest},
			want:    call{"clean", "", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMaintainer{}
			tm := New(m, &recordingNotifier{})

			require.NoError(t, tm.Perform(testsetup.NewTestScope(), tt.request))
			assert.Equal(t, []call{tt.want}, m.recorded())
		})
	}
}

func TestPerform_KillTriggersMaintenance(t *testing.T) {
	m := &fakeMaintainer{}
	tm := New(m, nil)

	require.NoError(t, tm.Perform(testsetup.NewTestScope(), Request{Request: constants.KillMatchRequest, Params: params("m1")}))

	assert.Equal(t, 1, m.triggers)
}

func TestPerform_ReportsFailures(t *testing.T) {
	scope := testsetup.NewTestScope()

	t.Run("unknown request", func(t *testing.T) {
		n := &recordingNotifier{}
		err := New(&fakeMaintainer{}, n).Perform(scope, Request{Request: "shuffle", Params: params("m1")})
		assert.ErrorIs(t, err, ErrUnknownRequest)
		assert.Equal(t, []string{"table manager shuffle"}, n.reported())
	})

	t.Run("missing match id", func(t *testing.T) {
		n := &recordingNotifier{}
		m := &fakeMaintainer{}
		err := New(m, n).Perform(scope, Request{Request: constants.KillMatchRequest})
		assert.ErrorIs(t, err, ErrMissingParam)
		assert.Empty(t, m.recorded())
		assert.Len(t, n.reported(), 1)
	})

	t.Run("maintainer error", func(t *testing.T) {
		n := &recordingNotifier{}
		failure := errors.New("store offline")
		err := New(&fakeMaintainer{err: failure}, n).Perform(scope, Request{Request: constants.CheckMatchRequest, Params: params("m1")})
		assert.ErrorIs(t, err, failure)
		assert.Len(t, n.reported(), 1)
	})

	t.Run("panic", func(t *testing.T) {
		n := &recordingNotifier{}
		err := New(&fakeMaintainer{panicOn: "enqueue"}, n).Perform(scope, Request{Request: constants.StartMatchRequest, Params: params("m1")})
		assert.ErrorContains(t, err, "panic in table manager start_match")
		assert.Equal(t, []string{"table manager start_match"}, n.reported())
	})
}

func TestListener_PerformsPushedRequests(t *testing.T) {
	memoryBus := bus.NewMemoryBus()
	m := &fakeMaintainer{}
	n := &recordingNotifier{}
	listener := &Listener{
		Bus:         memoryBus,
		Channel:     constants.TableManagerChannel,
		Manager:     New(m, n),
		PollTimeout: 20 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	require.NoError(t, memoryBus.Push(ctx, constants.TableManagerChannel, []byte("not json")))
	require.NoError(t, Submit(ctx, memoryBus, constants.TableManagerChannel, Request{Request: constants.StartMatchRequest, Params: params("m1")}))
	require.NoError(t, Submit(ctx, memoryBus, constants.TableManagerChannel, Request{Request: constants.KillMatchRequest, Params: params("m2")}))

	assert.Eventually(t, func() bool { return len(m.recorded()) == 2 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, []call{{"enqueue", "m1", ""}, {"kill", "m2", ""}}, m.recorded())
	assert.Equal(t, []string{"table manager"}, n.reported())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("listener did not stop")
	}
}
