package monitor

import (
	"context"
	"log"
	"time"
)

// RunLoop drives one watcher: an immediate first cycle, then one cycle per
// tick until the context is cancelled. A failed cycle is logged and the
// loop keeps going at the next scheduled tick.
func RunLoop(ctx context.Context, logger *log.Logger, interval time.Duration, cycle func(context.Context) error) {
	logger.Printf("started (interval %s)", interval)

	if err := cycle(ctx); err != nil {
		logger.Printf("cycle error: %v", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Printf("stopped")
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				logger.Printf("stopped")
				return
			}
			if err := cycle(ctx); err != nil {
				logger.Printf("cycle error: %v", err)
			}
		}
	}
}
