// Package tools holds the data capabilities bound to each analyst and their
// eino tool wrappers.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyike/alphaagents/internal/logger"
)

// UnavailablePrefix starts every text produced for a failed capability call.
const UnavailablePrefix = "ANALYSIS UNAVAILABLE"

// Guard runs fn and turns an error or panic into an unavailable marker, so
// a failing provider never surfaces as an error inside the agent loop.
func Guard(ctx context.Context, capability string, fn func(ctx context.Context) (string, error)) (out string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "Capability panicked", "capability", capability, "panic", fmt.Sprint(r))
			out = Unavailable(capability, fmt.Sprintf("internal error: %v", r))
		}
	}()

	text, err := fn(ctx)
	if err != nil {
		logger.Warn(ctx, "Capability failed", "capability", capability, "error", err)
		return Unavailable(capability, err.Error())
	}
	return text
}

func Unavailable(capability, reason string) string {
	return fmt.Sprintf("%s (%s): %s", UnavailablePrefix, capability, reason)
}

// IsUnavailable reports whether text is an unavailable marker.
func IsUnavailable(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), UnavailablePrefix)
}
