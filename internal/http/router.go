// Package http exposes a small local control API over the assistant client.
package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/longregen/alicia-sub010/internal/tools"
	"github.com/longregen/alicia-sub010/pkg/assistant"
	"github.com/longregen/alicia-sub010/pkg/protocol"
)

// reconnectTimeout bounds the dial performed by POST /api/reconnect.
const reconnectTimeout = 15 * time.Second

// Controller is the part of assistant.Client the API drives.
type Controller interface {
	Connect(ctx context.Context) error
	Status() assistant.Status
	SendMessage(conversationID, content, previousID string) (string, bool)
	Subscribe(conversationID string) bool
	Unsubscribe(conversationID string) bool
	RegisterTools() bool
}

// ToolSet is the device tool registry as seen by the API.
type ToolSet interface {
	Descriptors() []protocol.ToolDescriptor
	Unregister(name string) error
	Execute(ctx context.Context, name string, args protocol.Map) (protocol.Value, error)
}

type sendMessageRequest struct {
	ConversationID string `json:"conversationId" binding:"required"`
	Content        string `json:"content" binding:"required"`
	PreviousID     string `json:"previousId"`
}

type toolView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"inputSchema"`
}

type handler struct {
	client Controller
	tools  ToolSet
	logger *zap.Logger
}

// NewRouter builds the control API. toolSet may be nil.
func NewRouter(client Controller, toolSet ToolSet, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{client: client, tools: toolSet, logger: logger}

	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/status", h.status)
	api.GET("/tools", h.listTools)
	api.POST("/messages", h.sendMessage)
	api.PUT("/subscriptions/:conversationId", h.subscribe)
	api.DELETE("/subscriptions/:conversationId", h.unsubscribe)
	api.POST("/tools/register", h.registerTools)
	api.DELETE("/tools/:name", h.removeTool)
	api.POST("/tools/:name/execute", h.executeTool)
	api.POST("/reconnect", h.reconnect)

	return router
}

func (h *handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.client.Status())
}

func (h *handler) listTools(c *gin.Context) {
	views := []toolView{}
	if h.tools != nil {
		for _, d := range h.tools.Descriptors() {
			views = append(views, toolView{
				Name:        d.Name,
				Description: d.Description,
				InputSchema: protocol.ToAny(d.InputSchema),
			})
		}
	}
	c.JSON(http.StatusOK, gin.H{"tools": views})
}

func (h *handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, ok := h.client.SendMessage(req.ConversationID, req.Content, req.PreviousID)
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not connected"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"id": id})
}

func (h *handler) subscribe(c *gin.Context) {
	id := strings.TrimSpace(c.Param("conversationId"))
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation id is required"})
		return
	}
	if !h.client.Subscribe(id) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "subscribe not sent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversationId": id, "subscribed": true})
}

func (h *handler) unsubscribe(c *gin.Context) {
	id := strings.TrimSpace(c.Param("conversationId"))
	if !h.client.Unsubscribe(id) {
		h.logger.Debug("unsubscribe not sent", zap.String("conversation_id", id))
	}
	c.Status(http.StatusNoContent)
}

func (h *handler) registerTools(c *gin.Context) {
	if !h.client.RegisterTools() {
		c.JSON(http.StatusConflict, gin.H{"error": "not subscribed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"registered": true})
}

// removeTool drops a tool and re-announces the remaining set. The removal
// stands even when the announcement cannot be sent; the next subscribe
// carries the new set.
func (h *handler) removeTool(c *gin.Context) {
	if h.tools == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tool registry"})
		return
	}
	name := c.Param("name")
	if err := h.tools.Unregister(name); err != nil {
		if errors.Is(err, tools.ErrToolNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	announced := h.client.RegisterTools()
	h.logger.Info("device tool removed", zap.String("tool", name), zap.Bool("announced", announced))
	c.JSON(http.StatusOK, gin.H{"removed": name, "announced": announced})
}

// executeTool runs a tool locally with JSON arguments, bypassing the backend.
func (h *handler) executeTool(c *gin.Context) {
	if h.tools == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no tool registry"})
		return
	}
	var raw map[string]any
	if err := c.ShouldBindJSON(&raw); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	converted, err := protocol.FromAny(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	args, _ := converted.(protocol.Map)

	name := c.Param("name")
	result, err := h.tools.Execute(c.Request.Context(), name, args)
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, tools.ErrInvalidArgs):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"tool": name, "result": protocol.ToAny(result)})
	}
}

func (h *handler) reconnect(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), reconnectTimeout)
	defer cancel()
	if err := h.client.Connect(ctx); err != nil {
		h.logger.Warn("manual reconnect failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"state": h.client.Status().State})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
