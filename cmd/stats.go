package cmd

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

type statsReporter struct {
	cron *cron.Cron
}

// startStatsReporter calls report on schedule until Stop. An empty schedule
// never calls it.
func startStatsReporter(schedule string, report func()) (*statsReporter, error) {
	c := cron.New()
	if schedule != "" {
		if _, err := c.AddFunc(schedule, report); err != nil {
			return nil, fmt.Errorf("schedule statistics report %q: %w", schedule, err)
		}
	}

	c.Start()
	return &statsReporter{cron: c}, nil
}

// Stop waits for a report that is already running.
func (r *statsReporter) Stop() {
	<-r.cron.Stop().Done()
}
