// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package acpc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	ProtocolVersion = "VERSION:2.0.0"
	readyMessage    = "READY"
)

// ErrDisconnected means the dealer closed the connection, which it does when
// the match is over.
var ErrDisconnected = errors.New("dealer disconnected")

// Conn is a player's connection to a dealer.
type Conn struct {
	conn          net.Conn
	reader        *bufio.Reader
	mustSendReady bool
}

// Dial connects to the dealer and announces the protocol version.
func Dial(ctx context.Context, host string, port int, mustSendReady bool) (*Conn, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("connect to dealer: %w", err)
	}

	return NewConn(conn, mustSendReady)
}

// NewConn wraps an established connection and sends the version line.
func NewConn(conn net.Conn, mustSendReady bool) (*Conn, error) {
	c := &Conn{conn: conn, reader: bufio.NewReader(conn), mustSendReady: mustSendReady}
	if err := c.writeLine(ProtocolVersion); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// Receive blocks for the next match state, skipping comment lines. It
// returns ErrDisconnected once the dealer hangs up.
func (c *Conn) Receive(ctx context.Context) (MatchState, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}

	for {
		line, err := c.reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if err != nil && line == "" {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return MatchState{}, err
			}
			return MatchState{}, fmt.Errorf("%w: %v", ErrDisconnected, err)
		}
		if line == "" || line[0] == '#' || line[0] == ';' {
			continue
		}

		state, err := ParseMatchState(line)
		if err != nil {
			return MatchState{}, err
		}
		if c.mustSendReady && state.FirstStateOfFirstRound() {
			if err := c.writeLine(readyMessage); err != nil {
				return MatchState{}, err
			}
		}
		return state, nil
	}
}

// Send replies to state with action.
func (c *Conn) Send(state MatchState, action Action) error {
	return c.writeLine(state.Reply(action))
}

func (c *Conn) writeLine(line string) error {
	if _, err := c.conn.Write([]byte(line + "\r\n")); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
