package debug

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyike/alphaagents/internal/config"
)

func TestDisabledDebuggerDoesNothing(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.EinoDebugEnabled = false
	d := NewEinoDebugger(cfg)

	require.NoError(t, d.Initialize(context.Background()))
	assert.False(t, d.IsEnabled())
	assert.Empty(t, d.DebugURL())
	assert.False(t, NewEinoDebugger(nil).IsEnabled())
}

func TestDebugURLNamesServerPort(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.EinoDebugEnabled = true
	cfg.EinoDebugPort = 61234
	d := NewEinoDebugger(cfg)

	assert.Equal(t, 61234, d.port())
	assert.Equal(t, "http://localhost:61234", d.DebugURL())

	cfg.EinoDebugPort = 0
	assert.Equal(t, defaultDebugPort, d.port())
	assert.Equal(t, "http://localhost:52538", d.DebugURL())
}
