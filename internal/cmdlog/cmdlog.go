package cmdlog

import (
	"time"

	"xharvest/internal/logging"
	"xharvest/internal/metrics"
)

// Run executes a CLI command body, counting runs and errors and logging the outcome.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	start := time.Now()
	err := f()
	if err != nil {
		metrics.IncCommandError(cmd)
		logging.Error(cmd+"_error", map[string]any{"error": err.Error(), "elapsed": time.Since(start).String()})
	} else {
		logging.Info(cmd+"_ok", map[string]any{"elapsed": time.Since(start).String()})
	}
	return err
}
