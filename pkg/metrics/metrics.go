// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type TableManagerMetrics interface {
	QueueLength(gameType string, waiting int, running int)
	AddMatchStarted(gameType string)
	AddMatchStartFailure(gameType string, reason string)
	AddKillEscalation(signal string)
	AddSpawnElapsedTimeMs(kind string, elapsedTime time.Duration)
	AddPublishedUpdate(reason string)
	AddAutoAction(action string)
}

func NewMetrics(registry *prometheus.Registry) TableManagerMetrics {
	return setupPrometheusMetrics(registry)
}
