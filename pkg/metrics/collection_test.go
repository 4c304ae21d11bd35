// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusMetrics_RecordsQueueAndStarts(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := setupPrometheusMetrics(registry)

	m.QueueLength("holdem", 1, 2)
	m.AddMatchStarted("holdem")
	m.AddMatchStarted("holdem")
	m.AddMatchStartFailure("holdem", "no_port_available")
	m.AddSpawnElapsedTimeMs("dealer", 12*time.Millisecond)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.matchesInQueue.WithLabelValues("holdem", "waiting")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.matchesInQueue.WithLabelValues("holdem", "running")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.matchesStarted.WithLabelValues("holdem")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.matchStartFailures.WithLabelValues("holdem", "no_port_available")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.spawnElapsedTime))
}
