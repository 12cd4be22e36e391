package debug

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cloudwego/eino-ext/devops"

	"github.com/dyike/alphaagents/internal/config"
	"github.com/dyike/alphaagents/internal/logger"
)

// defaultDebugPort is the devops server's own default.
const defaultDebugPort = 52538

// EinoDebugger starts the eino devops server so analyst ReAct graphs can be
// inspected while a session runs.
type EinoDebugger struct {
	config *config.Config
}

func NewEinoDebugger(cfg *config.Config) *EinoDebugger {
	return &EinoDebugger{config: cfg}
}

// Initialize is a no-op unless eino debugging is enabled.
func (d *EinoDebugger) Initialize(ctx context.Context) error {
	if !d.IsEnabled() {
		return nil
	}

	logger.Info(ctx, "Initializing Eino visual debug plugin", "port", d.port())
	if err := devops.Init(ctx, devops.WithDevServerPort(strconv.Itoa(d.port()))); err != nil {
		return fmt.Errorf("failed to initialize Eino debug plugin: %w", err)
	}
	logger.Info(ctx, "Eino debug server ready", "url", d.DebugURL())
	return nil
}

func (d *EinoDebugger) IsEnabled() bool {
	return d.config != nil && d.config.EinoDebugEnabled
}

// port is the port the server listens on; DebugURL always names the same one.
func (d *EinoDebugger) port() int {
	if d.config == nil || d.config.EinoDebugPort <= 0 || d.config.EinoDebugPort > 65535 {
		return defaultDebugPort
	}
	return d.config.EinoDebugPort
}

func (d *EinoDebugger) DebugURL() string {
	if !d.IsEnabled() {
		return ""
	}
	return fmt.Sprintf("http://localhost:%d", d.port())
}
