// Package runtime wires configuration, logging, tools, the assistant client
// and the control API into one process.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	appconfig "github.com/longregen/alicia-sub010/internal/config"
	apphttp "github.com/longregen/alicia-sub010/internal/http"
	applogger "github.com/longregen/alicia-sub010/internal/logger"
	"github.com/longregen/alicia-sub010/internal/tools"
	"github.com/longregen/alicia-sub010/pkg/assistant"
	"github.com/longregen/alicia-sub010/pkg/protocol"
)

// App owns every long-lived component.
type App struct {
	cfg      appconfig.Config
	logger   *zap.Logger
	closeLog func() error
	registry *tools.Registry
	client   *assistant.Client
	server   *http.Server
}

// New loads configPath and builds the application. verbose forces debug logs.
func New(configPath string, verbose bool) (*App, error) {
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load assistant config: %w", err)
	}

	logger, err := applogger.New(cfg.Log, verbose)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger.Info("assistant config loaded",
		zap.String("config_path", configPath),
		zap.String("backend_url", cfg.Backend.URL),
		zap.String("log_level", cfg.Log.Level),
		zap.Bool("control_enabled", cfg.Control.Enabled),
	)

	app, err := NewWithLogger(cfg, logger.Logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	app.closeLog = logger.Close
	return app, nil
}

// NewWithLogger builds the application from an already loaded config.
func NewWithLogger(cfg appconfig.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry, err := tools.LoadRegistry(cfg.Tools.Manifest)
	if err != nil {
		return nil, err
	}
	logger.Info("device tools loaded", zap.Strings("tools", registry.Names()))

	client := assistant.New(cfg.ClientConfig(), registry, clientCallbacks(logger), logger.Named("assistant"))
	client.AddListener("", fallbackListener(logger))

	app := &App{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		client:   client,
	}
	if cfg.Control.Enabled {
		app.server = &http.Server{
			Addr:    cfg.Control.Addr,
			Handler: apphttp.NewRouter(client, registry, logger.Named("control")),
		}
	}
	return app, nil
}

// Client returns the assistant client.
func (a *App) Client() *assistant.Client {
	return a.client
}

// Registry returns the device tool registry.
func (a *App) Registry() *tools.Registry {
	return a.registry
}

// Run connects to the backend and serves the control API until ctx is done.
// A failed first dial is not fatal; the client keeps retrying.
func (a *App) Run(ctx context.Context) error {
	if err := a.client.Connect(ctx); err != nil {
		a.logger.Warn("initial connect failed; retrying in background", zap.Error(err))
	}

	errCh := make(chan error, 1)
	if a.server != nil {
		go func() {
			a.logger.Info("starting control api", zap.String("addr", a.server.Addr))
			errCh <- ignoreServerClosed(a.server.ListenAndServe())
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("control api: %w", err)
		}
		return nil
	}
}

// Shutdown stops the control API, disconnects the client and waits for
// running tools until ctx expires.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := ignoreServerClosed(a.server.Shutdown(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("shutdown control api: %w", err))
		}
	}

	a.client.Disconnect()
	done := make(chan struct{})
	go func() {
		a.client.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("tool executions still running at shutdown")
	}

	a.logger.Info("assistant client stopped")
	if a.closeLog != nil {
		if err := a.closeLog(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func ignoreServerClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func clientCallbacks(logger *zap.Logger) assistant.Callbacks {
	return assistant.Callbacks{
		OnConnected: func() {
			logger.Info("assistant ready")
		},
		OnDisconnected: func(err error) {
			logger.Warn("assistant link down", zap.Error(err))
		},
		OnToolsRegistered: func(ack protocol.ToolsAck) {
			if !ack.Success {
				logger.Warn("tool registration rejected", zap.String("error", ack.Error))
				return
			}
			logger.Info("tools registered", zap.Int("tool_count", ack.ToolCount))
		},
	}
}

// fallbackListener logs events of conversations without their own listener.
func fallbackListener(logger *zap.Logger) *assistant.Listener {
	return &assistant.Listener{
		OnAssistantMessage: func(msg protocol.AssistantMessage) {
			logger.Info("assistant message",
				zap.String("conversation_id", msg.ConversationID),
				zap.String("message_id", msg.ID),
				zap.Int("content_len", len(msg.Content)),
			)
		},
		OnTitleUpdate: func(update protocol.TitleUpdate) {
			logger.Info("conversation title", zap.String("conversation_id", update.ConversationID), zap.String("title", update.Title))
		},
		OnToolUseStarted: func(req protocol.ToolUseRequest) {
			logger.Debug("tool requested",
				zap.String("request_id", req.ID),
				zap.String("tool_name", req.ToolName),
				zap.String("execution", req.Execution),
			)
		},
		OnError: func(err error) {
			logger.Warn("assistant error", zap.Error(err))
		},
	}
}
