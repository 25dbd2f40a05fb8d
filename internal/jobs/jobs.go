// Package jobs runs the periodic aggregation, cleanup and GeoLite update
// work on cron schedules.
package jobs

import "context"

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}
