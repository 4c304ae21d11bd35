// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/AccelByte/extend-table-manager/pkg/bus"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/models"
	"github.com/AccelByte/extend-table-manager/pkg/proxy"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// Server bridges websocket clients to proxy channels: updates popped from
// <id>-from-proxy are written to the socket and client messages are pushed
// to <id>-to-proxy.
type Server struct {
	Bus bus.Bus
	// PollTimeout bounds each pop so a closed socket is noticed.
	PollTimeout time.Duration

	upgrader websocket.Upgrader
}

func NewServer(b bus.Bus, pollTimeout time.Duration) *Server {
	return &Server{
		Bus:         b,
		PollTimeout: pollTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /proxies/{id}", s.handleProxy)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	proxyID := r.PathValue("id")
	if _, _, err := models.ParseProxyID(proxyID); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	scope := envelope.NewRootScope(context.Background(), "gateway.Session", "")
	defer scope.Finish()
	scope.Log = scope.Log.WithFields(logrus.Fields{
		"proxyID":  proxyID,
		"clientID": uuid.NewString(),
		"remote":   r.RemoteAddr,
	})
	scope.Log.Info("client connected")

	ctx, cancel := context.WithCancel(scope.Ctx)
	defer cancel()

	go s.writePump(scope.WithContext(ctx), conn, proxyID)
	s.readPump(scope.WithContext(ctx), conn, proxyID)

	scope.Log.Info("client disconnected")
}

// readPump forwards client messages until the socket closes.
func (s *Server) readPump(scope *envelope.Scope, conn *websocket.Conn, proxyID string) {
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				scope.Log.WithError(err).Warn("websocket closed unexpectedly")
			}
			return
		}

		var message models.ClientMessage
		if err := json.Unmarshal(payload, &message); err != nil {
			scope.Log.WithError(err).Debug("dropping malformed client message")
			continue
		}
		encoded, _ := json.Marshal(message)
		if err := s.Bus.Push(scope.Ctx, proxy.ReceiveChannel(proxyID), encoded); err != nil {
			scope.Log.WithError(err).Error("unable to forward client message")
			return
		}
	}
}

// writePump relays updates until the session ends.
func (s *Server) writePump(scope *envelope.Scope, conn *websocket.Conn, proxyID string) {
	defer conn.Close()

	for {
		payload, err := s.Bus.Pop(scope.Ctx, proxy.SendChannel(proxyID), s.PollTimeout)
		switch {
		case scope.Ctx.Err() != nil:
			return
		case errors.Is(err, bus.ErrTimeout):
			continue
		case err != nil:
			scope.Log.WithError(err).Error("unable to read proxy updates")
			return
		}

		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			scope.Log.WithError(err).Debug("unable to write update")
			return
		}
	}
}
