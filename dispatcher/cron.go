package dispatcher

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jhacksman/FeedEater-sub001/bus"
	"github.com/jhacksman/FeedEater-sub001/cronengine"
	"github.com/jhacksman/FeedEater-sub001/wire"
)

// ScheduleCronJob wires one module's scheduled job to the cron engine,
// publishing a canonical job-run event with trigger={type:"schedule"} on
// each tick.
func ScheduleCronJob(ctx context.Context, b *bus.Bus, module, queue, job, expr string, logger *slog.Logger) cronengine.Cancel {
	if logger == nil {
		logger = slog.Default()
	}
	return cronengine.Schedule(ctx, expr, func(at time.Time) {
		ev := wire.JobRunEvent{
			Type:        "JobRun",
			Module:      module,
			Queue:       queue,
			Job:         job,
			RequestedAt: at,
			Trigger:     wire.Trigger{Type: wire.TriggerSchedule},
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			logger.Error("failed to encode scheduled job-run event", "module", module, "job", job, "error", err)
			return
		}
		if err := b.Publish(bus.JobRunSubject(module, queue, job), payload); err != nil {
			logger.Error("failed to publish scheduled job-run event", "module", module, "job", job, "error", err)
		}
	}, func(err error) {
		logger.Error("cron schedule error", "module", module, "queue", queue, "job", job, "expr", expr, "error", err)
	})
}
