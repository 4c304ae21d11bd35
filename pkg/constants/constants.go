// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package constants

import "time"

const (
	DefaultSpawnTimeout   = 3 * time.Second
	DefaultKillGrace      = 1 * time.Second
	DefaultPortRetryDelay = 1 * time.Second
	DefaultRetention      = 24 * time.Hour
)

// Pub/sub naming. Each proxy id owns one inbound and one outbound list.
const (
	ToProxySuffix   = "-to-proxy"
	FromProxySuffix = "-from-proxy"

	TableManagerChannel = "table-manager"
	ErrorReportChannel  = "table-manager-errors"
)

// Requests understood by the table manager.
const (
	StartMatchRequest              = "start_match"
	StartProxyRequest              = "start_proxy"
	KillMatchRequest               = "kill_match"
	CheckMatchRequest              = "check_match"
	DeleteIrrelevantMatchesRequest = "delete_irrelevant_matches"

	MatchIDKey = "match_id"
	OptionsKey = "options"
)

// Reasons a match did not start.
const (
	ReasonNoPortAvailable     = "no_port_available"
	ReasonTooManySpecialPorts = "too_many_special_ports"
	ReasonSpawnFailed         = "spawn_failed"
	ReasonMatchMissing        = "match_missing"
)

// Reasons a running match was reaped.
const (
	ReapReasonDealerDead   = "dealer_dead"
	ReapReasonMatchMissing = "match_missing"
	ReapReasonExpired      = "expired"
)

const (
	QueueStateEnqueuedFile = "enqueued_matches.yml"
	QueueStateRunningFile  = "running_matches.yml"
)

// NextHandAction is the client action that advances past a finished hand.
const NextHandAction = "next-hand"

// DefaultDealerOptions appends logs, allows 80 seconds per action and disables hand limits.
const DefaultDealerOptions = "-a --t_response 80000 --t_hand -1 --t_per_hand -1"
