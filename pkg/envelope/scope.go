// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package envelope

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/AccelByte/extend-table-manager/pkg/utils"
)

const (
	traceIDLogField = "traceID"
	tracerName      = "table-manager"

	MatchIDLogField  = "matchID"
	GameTypeLogField = "gameType"
	PIDLogField      = "pid"
)

// NewRootScope starts a new trace. An empty or malformed traceID is replaced with a fresh one.
func NewRootScope(rootCtx context.Context, name string, traceID string) *Scope {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(rootCtx, name)

	if len(traceID) != 32 {
		if spanTraceID := span.SpanContext().TraceID(); spanTraceID.IsValid() {
			traceID = spanTraceID.String()
		} else {
			traceID = utils.GenerateUUID()
		}
	}

	return &Scope{
		Ctx:     ctx,
		TraceID: traceID,
		span:    span,
		Log:     logrus.WithField(traceIDLogField, traceID),
	}
}

// Scope carries the context, trace span and logger through a chain of calls.
type Scope struct {
	Ctx     context.Context
	TraceID string
	span    oteltrace.Span
	Log     *logrus.Entry
}

// SetLogger replaces the logger, mostly useful in tests.
func (s *Scope) SetLogger(logger *logrus.Logger) {
	s.Log = logger.WithField(traceIDLogField, s.TraceID)
}

func (s *Scope) Finish() {
	s.span.End()
}

func (s *Scope) NewChildScope(name string) *Scope {
	tracer := s.span.TracerProvider().Tracer(tracerName)
	ctx, span := tracer.Start(s.Ctx, name)

	return &Scope{
		Ctx:     ctx,
		TraceID: s.TraceID,
		span:    span,
		Log:     s.Log,
	}
}

// WithMatch returns a child scope whose log lines and span carry the match and game type.
func (s *Scope) WithMatch(name, matchID, gameType string) *Scope {
	child := s.NewChildScope(name)
	child.Log = child.Log.WithFields(logrus.Fields{
		MatchIDLogField:  matchID,
		GameTypeLogField: gameType,
	})
	child.SetAttributes(MatchIDLogField, matchID)
	if gameType != "" {
		child.SetAttributes(GameTypeLogField, gameType)
	}

	return child
}

// WithContext returns a shallow copy bound to ctx, for cancellation scoped below the span.
func (s *Scope) WithContext(ctx context.Context) *Scope {
	copied := *s
	copied.Ctx = ctx

	return &copied
}

// RecordError marks the span as failed.
func (s *Scope) RecordError(err error) {
	if err != nil {
		s.span.RecordError(err)
	}
}

func (s *Scope) SetAttributes(key string, value interface{}) {
	switch v := value.(type) {
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case []int:
		s.span.SetAttributes(attribute.IntSlice(key, v))
	case []string:
		s.span.SetAttributes(attribute.StringSlice(key, v))
	case time.Duration:
		s.span.SetAttributes(attribute.Int64(key, v.Milliseconds()))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}
