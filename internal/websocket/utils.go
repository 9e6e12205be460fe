package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// WriteTyped sends a strongly-typed response payload over the WebSocket.
func WriteTyped(conn *websocket.Conn, v interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(v)
}

// WriteError sends a typed ErrorResponse over the WebSocket.
func WriteError(conn *websocket.Conn, errMsg string) error {
	return WriteTyped(conn, ErrorResponse{
		Event: EventError,
		Error: errMsg,
	})
}

// PeekAction decodes just the action discriminator from a raw message,
// so the caller can pick the right payload type.
func PeekAction(raw []byte) (*RequestEnvelope, error) {
	var envelope RequestEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

// DecodeInto unmarshals a raw message into the typed request structure.
func DecodeInto(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}
