// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package proxy

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AccelByte/extend-table-manager/pkg/bus"
	"github.com/AccelByte/extend-table-manager/pkg/constants"
	"github.com/AccelByte/extend-table-manager/pkg/envelope"
	"github.com/AccelByte/extend-table-manager/pkg/models"
)

var ErrMalformedMessage = errors.New("malformed client message")

// Communicator carries updates to the client and messages from it.
type Communicator interface {
	Publish(scope *envelope.Scope, update models.Update) error
	// Receive returns bus.ErrTimeout when nothing arrived within timeout.
	Receive(scope *envelope.Scope, timeout time.Duration) (models.ClientMessage, error)
	// Clear drops whatever is still queued in either direction.
	Clear(scope *envelope.Scope) error
}

// BusCommunicator uses the <id>-from-proxy and <id>-to-proxy channels.
type BusCommunicator struct {
	Bus bus.Bus
	ID  string
}

func NewCommunicator(b bus.Bus, id string) *BusCommunicator {
	return &BusCommunicator{Bus: b, ID: id}
}

func SendChannel(id string) string {
	return id + constants.FromProxySuffix
}

func ReceiveChannel(id string) string {
	return id + constants.ToProxySuffix
}

func (c *BusCommunicator) Publish(scope *envelope.Scope, update models.Update) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return c.Bus.Push(scope.Ctx, SendChannel(c.ID), payload)
}

func (c *BusCommunicator) Receive(scope *envelope.Scope, timeout time.Duration) (models.ClientMessage, error) {
	payload, err := c.Bus.Pop(scope.Ctx, ReceiveChannel(c.ID), timeout)
	if err != nil {
		return models.ClientMessage{}, err
	}

	var message models.ClientMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		return models.ClientMessage{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return message, nil
}

func (c *BusCommunicator) Clear(scope *envelope.Scope) error {
	return c.Bus.Delete(scope.Ctx, SendChannel(c.ID), ReceiveChannel(c.ID))
}
