// Package ws carries the relay wire protocol and the server side of a connection.
package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MobasirSarkar/chatrelay/internal/chat"
)

// Event names.
const (
	EventJoin       = "join"
	EventSend       = "send"
	EventNewMessage = "new-message"
)

var ErrMalformed = errors.New("malformed frame")

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRequest binds a connection to a room. Data may also be a bare JSON string.
type JoinRequest struct {
	UserID string `json:"userId"`
	Token  string `json:"token,omitempty"`
}

// DecodeEnvelope parses one frame.
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: no event", ErrMalformed)
	}
	return env, nil
}

// DecodeJoin reads join data in either of its shapes.
func DecodeJoin(data json.RawMessage) (JoinRequest, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var userID string
		if err := json.Unmarshal(trimmed, &userID); err != nil {
			return JoinRequest{}, fmt.Errorf("%w: %s", ErrMalformed, err)
		}
		return JoinRequest{UserID: userID}, nil
	}
	var req JoinRequest
	if len(trimmed) > 0 {
		if err := json.Unmarshal(trimmed, &req); err != nil {
			return JoinRequest{}, fmt.Errorf("%w: %s", ErrMalformed, err)
		}
	}
	return req, nil
}

// DecodeSend reads a send request and checks its fields.
func DecodeSend(data json.RawMessage) (chat.Message, error) {
	var m chat.Message
	if err := json.Unmarshal(data, &m); err != nil {
		return chat.Message{}, fmt.Errorf("%w: %s", ErrMalformed, err)
	}
	if err := chat.ValidateMessage(m); err != nil {
		return chat.Message{}, err
	}
	return m, nil
}

// Encode builds a frame for event carrying v.
func Encode(event string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}
