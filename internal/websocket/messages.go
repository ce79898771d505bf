package websocket

import (
	"encoding/json"

	"github.com/adsbtools/skybridge/internal/realtime"
	"github.com/adsbtools/skybridge/internal/tracker"
)

// Outgoing messages are concrete structs, one shape per type tag, so the
// wire protocol is the same one the upstream client decodes.

// SnapshotMessage is a full replace-all batch sent once per subscription
type SnapshotMessage struct {
	Type     string                     `json:"type"`
	Aircraft []tracker.AircraftPosition `json:"aircraft"`
}

// NewSnapshotMessage builds a snapshot from the given entries
func NewSnapshotMessage(entries []tracker.AircraftPosition) *SnapshotMessage {
	return &SnapshotMessage{
		Type:     realtime.MessageTypePositionsSnapshot,
		Aircraft: entries,
	}
}

// UpdateMessage is an incremental batch of updated positions and removals
type UpdateMessage struct {
	Type      string                     `json:"type"`
	Positions []tracker.AircraftPosition `json:"positions"`
	Removed   []string                   `json:"removed"`
}

// NewUpdateMessage builds a delta from the given updates and removals
func NewUpdateMessage(updates []tracker.AircraftPosition, removed []string) *UpdateMessage {
	return &UpdateMessage{
		Type:      realtime.MessageTypePositionsUpdate,
		Positions: updates,
		Removed:   removed,
	}
}

// BatchMessage carries multiple logical messages in one frame
type BatchMessage struct {
	Type     string `json:"type"`
	Messages []any  `json:"messages"`
}

// NewBatchMessage wraps the given messages into one envelope
func NewBatchMessage(messages ...any) *BatchMessage {
	return &BatchMessage{
		Type:     realtime.MessageTypeBatch,
		Messages: messages,
	}
}

// StatusMessage reports low-frequency aggregate state to subscribers
type StatusMessage struct {
	Type      string `json:"type"`
	Connected bool   `json:"connected"`
	Count     int    `json:"count"`
}

// NewStatusMessage builds a status report
func NewStatusMessage(connected bool, count int) *StatusMessage {
	return &StatusMessage{
		Type:      realtime.MessageTypeStatus,
		Connected: connected,
		Count:     count,
	}
}

// ResponseMessage resolves a correlated request
type ResponseMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Data      any    `json:"data"`
}

// NewResponseMessage builds a response for the given correlation identifier
func NewResponseMessage(requestID string, data any) *ResponseMessage {
	return &ResponseMessage{
		Type:      realtime.MessageTypeResponse,
		RequestID: requestID,
		Data:      data,
	}
}

// ErrorMessage rejects a correlated request with a server-side message
type ErrorMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Message   string `json:"message"`
}

// NewErrorMessage builds an error for the given correlation identifier
func NewErrorMessage(requestID string, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:      realtime.MessageTypeError,
		RequestID: requestID,
		Message:   message,
	}
}

// IncomingMessage is one frame read from a downstream client
type IncomingMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id"`
	Params    json.RawMessage `json:"params"`
}
