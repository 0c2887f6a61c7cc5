package providers

import (
	"context"
	"time"
)

const (
	// shutdownTimeout is the maximum time to wait for graceful shutdown of services.
	shutdownTimeout = 30 * time.Second

	// invalidateTimeout bounds the work done inside a registry invalidation hook.
	invalidateTimeout = 10 * time.Second
)

func invalidateContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), invalidateTimeout)
}
