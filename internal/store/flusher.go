package store

import (
	"fmt"

	"github.com/robfig/cron/v3"

	appLog "famcal/internal/log"
)

// Flushable is implemented by stores that buffer writes in memory.
type Flushable interface {
	Flush() error
}

// StartFlusher schedules f.Flush on the given standard 5-field cron spec and
// starts the scheduler. Stop the returned cron (and call Flush once more) on
// shutdown.
func StartFlusher(spec string, f Flushable) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := f.Flush(); err != nil {
			appLog.Error("store: scheduled flush failed", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid flush schedule %q: %w", spec, err)
	}
	c.Start()
	appLog.Info("store: flusher started", "schedule", spec)
	return c, nil
}
