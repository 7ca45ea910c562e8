package assistant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/longregen/alicia-sub010/pkg/protocol"
)

// dispatchTool answers a client-side tool request. Unknown tools are answered
// inline; known tools run on their own goroutine so the read loop keeps going.
func (c *Client) dispatchTool(req protocol.ToolUseRequest) {
	logger := c.logger.With(
		zap.String("request_id", req.ID),
		zap.String("tool_name", req.ToolName),
		zap.String("conversation_id", req.ConversationID),
	)

	var executor ToolExecutor
	found := false
	if c.registry != nil {
		executor, found = c.registry.Lookup(req.ToolName)
	}
	if !found {
		logger.Warn("assistant unknown tool")
		c.sendToolResult(logger, req, nil, "Unknown tool: "+req.ToolName)
		return
	}

	c.mu.Lock()
	ctx := c.lifetime
	c.mu.Unlock()
	if ctx == nil {
		return
	}

	c.inflight.Go(func() {
		value, err := c.executeTool(ctx, executor, req)
		if ctx.Err() != nil {
			logger.Info("assistant tool result dropped after disconnect")
			return
		}
		if err != nil {
			msg := err.Error()
			if msg == "" {
				msg = "tool failed"
			}
			logger.Warn("assistant tool failed", zap.Error(err))
			c.sendToolResult(logger, req, nil, msg)
			return
		}
		c.sendToolResult(logger, req, value, "")
	})
}

func (c *Client) executeTool(ctx context.Context, executor ToolExecutor, req protocol.ToolUseRequest) (value protocol.Value, err error) {
	if c.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.ToolTimeout)
		defer cancel()
	}

	var catcher panics.Catcher
	catcher.Try(func() {
		value, err = executor.Execute(ctx, req.Arguments)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		c.logger.Error("assistant tool panicked",
			zap.String("request_id", req.ID),
			zap.String("tool_name", req.ToolName),
			zap.Error(recovered.AsError()),
		)
		return nil, fmt.Errorf("tool %s panicked: %v", req.ToolName, recovered.Value)
	}
	return value, err
}

func (c *Client) sendToolResult(logger *zap.Logger, req protocol.ToolUseRequest, value protocol.Value, errMsg string) bool {
	result := protocol.ToolUseResult{
		ID:             "tu_" + uuid.NewString(),
		RequestID:      req.ID,
		MessageID:      req.MessageID,
		ConversationID: req.ConversationID,
		Success:        errMsg == "",
		Result:         value,
		Error:          errMsg,
	}
	if !c.sendEnvelope(req.ConversationID, protocol.TypeToolUseResult, result) {
		logger.Warn("assistant tool result not sent")
		return false
	}
	logger.Debug("assistant tool result sent", zap.Bool("success", result.Success))
	return true
}
