package api

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adsbtools/skybridge/internal/realtime"
	"github.com/adsbtools/skybridge/internal/tracker"
	"github.com/adsbtools/skybridge/internal/websocket"
	"github.com/adsbtools/skybridge/pkg/logger"
)

// WSHandler serves the downstream socket protocol: the initial snapshot on
// subscription and correlated request/response exchanges.
type WSHandler struct {
	engine  *tracker.Engine
	store   *tracker.Store
	handler *Handler
	logger  *logger.Logger
}

// NewWSHandler creates a websocket message handler
func NewWSHandler(engine *tracker.Engine, store *tracker.Store, handler *Handler, log *logger.Logger) *WSHandler {
	return &WSHandler{
		engine:  engine,
		store:   store,
		handler: handler,
		logger:  log.Named("ws-handler"),
	}
}

// requestParams are the parameters accepted by correlated requests
type requestParams struct {
	Hex   string `json:"hex"`
	Limit int    `json:"limit"`
}

// HandleMessage dispatches one client message
func (h *WSHandler) HandleMessage(client *websocket.Client, msg websocket.IncomingMessage) error {
	switch msg.Type {
	case realtime.MessageTypeSubscribe:
		return h.sendSnapshot(client)

	case "aircraft:list", "aircraft:get", "aircraft:history", "status:get":
		return h.handleRequest(client, msg)

	default:
		h.logger.Debug("Ignoring client message", logger.String("type", msg.Type))
		return nil
	}
}

// sendSnapshot delivers the full committed position set followed by the
// connection status, batched so the client applies them in one pass.
func (h *WSHandler) sendSnapshot(client *websocket.Client) error {
	entries := make([]tracker.AircraftPosition, 0, h.store.Count())
	h.store.ForEach(func(hex string, previous, target tracker.AircraftPosition, committedAt time.Time) {
		entries = append(entries, target)
	})

	batch := websocket.NewBatchMessage(
		websocket.NewSnapshotMessage(entries),
		websocket.NewStatusMessage(true, len(entries)),
	)

	if !client.SendMessage(batch) {
		return fmt.Errorf("failed to queue snapshot for client")
	}

	h.logger.Debug("Sent snapshot to client", logger.Int("count", len(entries)))
	return nil
}

// handleRequest resolves one correlated request and echoes its request_id
// back on the response or error message.
func (h *WSHandler) handleRequest(client *websocket.Client, msg websocket.IncomingMessage) error {
	if msg.RequestID == "" {
		h.logger.Warn("Dropping request without request_id", logger.String("type", msg.Type))
		return nil
	}

	var params requestParams
	if len(msg.Params) > 0 {
		if err := json.Unmarshal(msg.Params, &params); err != nil {
			h.sendError(client, msg.RequestID, "invalid params: "+err.Error())
			return nil
		}
	}

	data, err := h.resolve(msg.Type, params)
	if err != nil {
		h.sendError(client, msg.RequestID, err.Error())
		return nil
	}

	if !client.SendMessage(websocket.NewResponseMessage(msg.RequestID, data)) {
		return fmt.Errorf("failed to queue response for request %s", msg.RequestID)
	}
	return nil
}

func (h *WSHandler) resolve(reqType string, params requestParams) (any, error) {
	switch reqType {
	case "aircraft:list":
		return h.handler.buildAircraftResponse(), nil

	case "aircraft:get":
		pos, ok := h.engine.Displayed(params.Hex)
		if !ok {
			return nil, fmt.Errorf("aircraft not found: %s", tracker.CanonicalHex(params.Hex))
		}
		return h.handler.enrich(pos), nil

	case "aircraft:history":
		if h.handler.storage == nil {
			return nil, fmt.Errorf("track history persistence is disabled")
		}
		records, err := h.handler.storage.History(params.Hex, params.Limit)
		if err != nil {
			return nil, fmt.Errorf("failed to query track history: %w", err)
		}
		return HistoryResponse{
			Hex:     tracker.CanonicalHex(params.Hex),
			Count:   len(records),
			History: records,
		}, nil

	case "status:get":
		return h.handler.buildStatus(), nil

	default:
		return nil, fmt.Errorf("unknown request type: %s", reqType)
	}
}

func (h *WSHandler) sendError(client *websocket.Client, requestID, message string) {
	if !client.SendMessage(websocket.NewErrorMessage(requestID, message)) {
		h.logger.Warn("Failed to queue error for client", logger.String("request_id", requestID))
	}
}
