// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	matchesInQueue     prometheus.GaugeVec
	matchesStarted     prometheus.CounterVec
	matchStartFailures prometheus.CounterVec
	killEscalations    prometheus.CounterVec
	spawnElapsedTime   prometheus.HistogramVec
	publishedUpdates   prometheus.CounterVec
	automaticActions   prometheus.CounterVec
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	matchesInQueue := factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "acpc_table_manager_matches_in_queue",
			Help: "Number of matches per game type and queue state",
		}, []string{"game_type", "state"})

	matchesStarted := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acpc_table_manager_matches_started_total",
			Help: "Matches whose dealer and players were started",
		}, []string{"game_type"})

	matchStartFailures := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acpc_table_manager_match_start_failures_total",
			Help: "Start attempts that failed, by reason",
		}, []string{"game_type", "reason"})

	killEscalations := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acpc_table_manager_kill_escalations_total",
			Help: "Processes that ignored a termination signal",
		}, []string{"signal"})

	//nolint:promlinter
	spawnElapsedTime := factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "acpc_table_manager_spawn_elapsed_time_ms",
			Help:    "A histogram of process spawn time in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"kind"})

	publishedUpdates := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acpc_proxy_published_updates_total",
			Help: "Match state updates published to clients",
		}, []string{"reason"})

	automaticActions := factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acpc_proxy_automatic_actions_total",
			Help: "Actions a proxy took because its player timed out",
		}, []string{"action"})

	return prometheusMetrics{
		matchesInQueue:     *matchesInQueue,
		matchesStarted:     *matchesStarted,
		matchStartFailures: *matchStartFailures,
		killEscalations:    *killEscalations,
		spawnElapsedTime:   *spawnElapsedTime,
		publishedUpdates:   *publishedUpdates,
		automaticActions:   *automaticActions,
	}
}

func (metrics prometheusMetrics) QueueLength(gameType string, waiting int, running int) {
	metrics.matchesInQueue.With(prometheus.Labels{"game_type": gameType, "state": "waiting"}).Set(float64(waiting))
	metrics.matchesInQueue.With(prometheus.Labels{"game_type": gameType, "state": "running"}).Set(float64(running))
}

func (metrics prometheusMetrics) AddMatchStarted(gameType string) {
	metrics.matchesStarted.With(prometheus.Labels{"game_type": gameType}).Inc()
}

func (metrics prometheusMetrics) AddMatchStartFailure(gameType string, reason string) {
	metrics.matchStartFailures.With(prometheus.Labels{"game_type": gameType, "reason": reason}).Inc()
}

func (metrics prometheusMetrics) AddKillEscalation(signal string) {
	metrics.killEscalations.With(prometheus.Labels{"signal": signal}).Inc()
}

func (metrics prometheusMetrics) AddSpawnElapsedTimeMs(kind string, elapsedTime time.Duration) {
	metrics.spawnElapsedTime.With(prometheus.Labels{"kind": kind}).Observe(float64(elapsedTime.Milliseconds()))
}

func (metrics prometheusMetrics) AddPublishedUpdate(reason string) {
	metrics.publishedUpdates.With(prometheus.Labels{"reason": reason}).Inc()
}

func (metrics prometheusMetrics) AddAutoAction(action string) {
	metrics.automaticActions.With(prometheus.Labels{"action": action}).Inc()
}
