package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/adsbtools/skybridge/pkg/logger"
)

// requestResult carries the outcome of one correlated request
type requestResult struct {
	data json.RawMessage
	err  error
}

// pendingRequest is one in-flight correlated request. The timer is always
// stopped exactly once: on response, on error, on timeout, or on teardown.
type pendingRequest struct {
	reqType  string
	resultCh chan requestResult
	timer    *time.Timer
}

// requestMessage is the outgoing frame for a correlated request
type requestMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Params    any    `json:"params,omitempty"`
}

// Request turns the fire-and-forget channel into an async call: it sends
// {type, request_id, params} with a unique correlation identifier and
// waits for the matching response. On timeout the request is satisfied via
// the REST fallback when one is configured; otherwise it fails with a
// timeout error naming the request type.
func (c *Client) Request(ctx context.Context, reqType string, params any) (json.RawMessage, error) {
	id := uuid.NewString()
	pending := &pendingRequest{
		reqType:  reqType,
		resultCh: make(chan requestResult, 1),
	}

	// The timer is armed under pendingMu so any goroutine that finds the
	// entry in the map also sees the timer
	c.pendingMu.Lock()
	pending.timer = time.AfterFunc(c.cfg.RequestTimeout(), func() {
		c.timeoutPending(ctx, id)
	})
	c.pending[id] = pending
	c.pendingMu.Unlock()

	if err := c.writeJSON(requestMessage{Type: reqType, RequestID: id, Params: params}); err != nil {
		// Send failed: try the fallback immediately rather than waiting
		// out the timer
		c.unregisterPending(id)
		if c.rest != nil {
			c.logger.Debug("Socket send failed, using HTTP fallback",
				logger.String("type", reqType), logger.Error(err))
			return c.rest.Do(ctx, reqType, params)
		}
		return nil, fmt.Errorf("failed to send request %q: %w", reqType, err)
	}

	select {
	case result := <-pending.resultCh:
		return result.data, result.err
	case <-ctx.Done():
		c.unregisterPending(id)
		return nil, ctx.Err()
	case <-c.stopCh:
		c.unregisterPending(id)
		return nil, fmt.Errorf("client stopped")
	}
}

// timeoutPending fires when no response arrived within the request
// timeout. With a REST fallback configured the pending request is
// satisfied via an equivalent HTTP call instead of failing outright.
func (c *Client) timeoutPending(ctx context.Context, id string) {
	pending := c.unregisterPending(id)
	if pending == nil {
		// Already resolved
		return
	}

	if c.rest != nil {
		c.logger.Debug("Request timed out, using HTTP fallback",
			logger.String("type", pending.reqType))
		data, err := c.rest.Do(ctx, pending.reqType, nil)
		pending.resultCh <- requestResult{data: data, err: err}
		return
	}

	pending.resultCh <- requestResult{
		err: fmt.Errorf("request %q timed out after %s", pending.reqType, c.cfg.RequestTimeout()),
	}
}

// resolvePending completes a pending request by correlation identifier.
// Duplicate or unknown identifiers are ignored.
func (c *Client) resolvePending(id string, data json.RawMessage, err error) {
	pending := c.unregisterPending(id)
	if pending == nil {
		c.logger.Debug("Ignoring response for unknown request", logger.String("request_id", id))
		return
	}
	pending.resultCh <- requestResult{data: data, err: err}
}

// rejectAllPending fails every in-flight request immediately. Called on
// disconnect and teardown so no caller is left hanging.
func (c *Client) rejectAllPending(err error) {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[string]*pendingRequest)
	c.pendingMu.Unlock()

	for _, p := range pending {
		if p.timer != nil {
			p.timer.Stop()
		}
		p.resultCh <- requestResult{err: err}
	}

	if len(pending) > 0 {
		c.logger.Debug("Rejected pending requests", logger.Int("count", len(pending)))
	}
}

// unregisterPending removes and returns a pending request, stopping its
// timer. Returns nil when the identifier is unknown or already resolved.
func (c *Client) unregisterPending(id string) *pendingRequest {
	c.pendingMu.Lock()
	pending, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	if !ok {
		return nil
	}
	if pending.timer != nil {
		pending.timer.Stop()
	}
	return pending
}
