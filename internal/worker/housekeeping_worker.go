package worker

import (
	"github.com/spec-kit/deskbot/internal/scheduler"
	"github.com/spec-kit/deskbot/internal/service"
)

// Sweep names registered on the janitor.
const (
	SweepCooldowns = "application-cooldowns"
	SweepPending   = "application-pending"
)

// StartAuditWorker registers the audit handlers on the event dispatcher.
func StartAuditWorker(audit *service.AuditService) {
	if audit == nil {
		return
	}
	audit.RegisterHandlers()
}

// RegisterSweeps schedules the application housekeeping sweeps. The caller
// runs the janitor.
func RegisterSweeps(janitor *scheduler.Janitor, apps *service.ApplicationService, schedule string) error {
	if janitor == nil || apps == nil {
		return nil
	}
	if schedule == "" {
		schedule = "@every 1m"
	}
	if err := janitor.AddSweep(SweepCooldowns, schedule, apps.SweepCooldowns); err != nil {
		return err
	}
	return janitor.AddSweep(SweepPending, schedule, apps.SweepPending)
}
