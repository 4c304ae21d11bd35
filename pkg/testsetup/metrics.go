// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package testsetup

import (
	"sync"
	"time"

	"github.com/AccelByte/extend-table-manager/pkg/metrics"
)

// StubMetrics counts calls so tests can assert on them.
type StubMetrics struct {
	mu              sync.Mutex
	Started         map[string]int
	StartFailures   map[string]int
	KillEscalations int
	Published       map[string]int
	AutoActions     map[string]int
}

func (s *StubMetrics) QueueLength(gameType string, waiting int, running int) {
}

func (s *StubMetrics) AddMatchStarted(gameType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Started[gameType]++
}

func (s *StubMetrics) AddMatchStartFailure(gameType string, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartFailures[reason]++
}

func (s *StubMetrics) AddKillEscalation(signal string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.KillEscalations++
}

func (s *StubMetrics) AddSpawnElapsedTimeMs(kind string, elapsedTime time.Duration) {
}

func (s *StubMetrics) AddPublishedUpdate(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Published[reason]++
}

func (s *StubMetrics) AddAutoAction(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.AutoActions[action]++
}

func (s *StubMetrics) Count(counter map[string]int, key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return counter[key]
}

func NewStubMetrics() *StubMetrics {
	return &StubMetrics{
		Started:       map[string]int{},
		StartFailures: map[string]int{},
		Published:     map[string]int{},
		AutoActions:   map[string]int{},
	}
}

func NewMetrics() metrics.TableManagerMetrics {
	return NewStubMetrics()
}
