package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var shuttingDown atomic.Bool

// SetShuttingDown sets the shutdown flag. The health handler reports 503 while it is set.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown reports whether the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Step is one stage of a graceful shutdown.
type Step struct {
	Name    string
	Timeout time.Duration // 0 means no deadline beyond the parent ctx
	Run     func(ctx context.Context) error
}

// Shutdown sets the shutdown flag and runs steps in order, each under its own
// timeout. A failing step is logged and does not stop later steps; the joined
// errors are returned.
func Shutdown(ctx context.Context, logger *zap.Logger, steps ...Step) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	SetShuttingDown(true)

	var errs []error
	for _, s := range steps {
		if s.Run == nil {
			continue
		}
		stepCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		}
		start := time.Now()
		err := s.Run(stepCtx)
		cancel()
		if err != nil {
			logger.Error("shutdown step failed", zap.String("step", s.Name), zap.Duration("elapsed", time.Since(start)), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		logger.Debug("shutdown step done", zap.String("step", s.Name), zap.Duration("elapsed", time.Since(start)))
	}
	return errors.Join(errs...)
}
