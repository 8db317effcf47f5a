package core

import (
	"time"

	"pkt.systems/pslog"
)

// SchedulerDeps captures optional dependencies for the scheduler.
// Clock defaults to time.Now; tests inject a fake for determinism.
type SchedulerDeps struct {
	Logger pslog.Logger
	Clock  func() time.Time
}
