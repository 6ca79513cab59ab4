// Package dispatcher implements the job dispatcher: a single subscriber on
// the feedeater.jobs.> wildcard that executes every canonical job-run event
// against its resolved module handler, tracking job_runs and job_states
// lifecycle rows. Concurrency is bounded by a worker semaphore so handlers
// run concurrently without a global mutex.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jhacksman/FeedEater-sub001/bus"
	"github.com/jhacksman/FeedEater-sub001/metrics"
	"github.com/jhacksman/FeedEater-sub001/module"
	"github.com/jhacksman/FeedEater-sub001/storage"
	"github.com/jhacksman/FeedEater-sub001/wire"
)

// defaultMaxConcurrent bounds simultaneous handler executions when no
// override is configured.
const defaultMaxConcurrent = 16

// ModuleResolver resolves a loaded module runtime by name. The orchestrator
// supplies this from the module registry it built at boot.
type ModuleResolver func(moduleName string) (*module.Runtime, bool)

// Dispatcher is the sole executor of job-run events.
type Dispatcher struct {
	store    *storage.Store
	resolve  ModuleResolver
	buildCtx func(jobCtx context.Context, module, queue, job string) *module.JobContext
	logger   *slog.Logger

	sem chan struct{}
	wg  sync.WaitGroup
}

// New constructs a Dispatcher. buildCtx produces the per-run JobContext
// handed to the resolved handler.
func New(store *storage.Store, resolve ModuleResolver, buildCtx func(ctx context.Context, module, queue, job string) *module.JobContext, maxConcurrent int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	return &Dispatcher{
		store:    store,
		resolve:  resolve,
		buildCtx: buildCtx,
		logger:   logger,
		sem:      make(chan struct{}, maxConcurrent),
	}
}

// Start subscribes to the job-run wildcard and begins dispatching. The
// returned stop func unsubscribes and waits for every in-flight dispatch to
// return; the wait has no timeout of its own (dispatches still waiting for a
// semaphore slot return once ctx is done).
func (d *Dispatcher) Start(ctx context.Context, b *bus.Bus) (stop func(), err error) {
	unsub, err := b.Subscribe(bus.JobRunWildcard, func(subject string, data []byte) {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.dispatch(ctx, subject, data)
		}()
	})
	if err != nil {
		return nil, err
	}
	return func() {
		unsub()
		d.wg.Wait()
	}, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, subject string, data []byte) {
	var ev wire.JobRunEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		d.logger.Error("failed to decode job-run event, dropping", "subject", subject, "error", err)
		return
	}
	if ev.Module == "" || ev.Queue == "" || ev.Job == "" {
		d.logger.Error("job-run event missing module/queue/job, dropping", "subject", subject)
		return
	}
	if ev.RunID == "" {
		ev.RunID = uuid.New().String()
	}
	if ev.RequestedAt.IsZero() {
		ev.RequestedAt = time.Now()
	}

	now := time.Now()
	started, err := d.store.StartJobRun(ctx, ev.RunID, ev, now)
	if err != nil {
		d.logger.Error("failed to record job-run start, continuing", "run_id", ev.RunID, "error", err)
		return
	}
	if !started {
		d.logger.Debug("duplicate run id, skipping re-execution", "run_id", ev.RunID)
		return
	}
	if err := d.store.UpdateJobState(ctx, ev.Module, ev.Job, nil, nil, now); err != nil {
		d.logger.Error("failed to touch job state on start", "module", ev.Module, "job", ev.Job, "error", err)
	}

	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		return
	}

	d.execute(ctx, ev)
}

func (d *Dispatcher) execute(ctx context.Context, ev wire.JobRunEvent) {
	start := time.Now()
	runtime, ok := d.resolve(ev.Module)
	var runErr error
	var result *module.HandlerResult

	if !ok {
		runErr = fmt.Errorf("module %q not loaded", ev.Module)
	} else {
		handler, ok := runtime.HandlerFor(ev.Queue, ev.Job)
		if !ok {
			runErr = fmt.Errorf("no handler registered for %s/%s/%s", ev.Module, ev.Queue, ev.Job)
		} else {
			jobCtx := d.buildCtx(ctx, ev.Module, ev.Queue, ev.Job)
			result, runErr = invokeHandler(jobCtx, handler, ev.Data)
		}
	}

	duration := time.Since(start)
	metricsData := map[string]interface{}{"durationMs": duration.Milliseconds()}
	if result != nil {
		for k, v := range result.Metrics {
			metricsData[k] = v
		}
	}

	now := time.Now()
	if err := d.store.FinishJobRun(ctx, ev.RunID, runErr, metricsData, now); err != nil {
		d.logger.Error("failed to finalize job-run", "run_id", ev.RunID, "error", err)
	}
	if err := d.store.UpdateJobState(ctx, ev.Module, ev.Job, runErr, metricsData, now); err != nil {
		d.logger.Error("failed to update job state", "module", ev.Module, "job", ev.Job, "error", err)
	}

	status := "success"
	if runErr != nil {
		status = "error"
		d.logger.Error("job run failed", "module", ev.Module, "queue", ev.Queue, "job", ev.Job, "run_id", ev.RunID, "error", runErr)
	}
	metrics.ObserveJobRun(ev.Module, ev.Queue, ev.Job, status, duration)
}

// invokeHandler runs handler, converting a panic into an error carrying
// "name: message\nstack" so a handler panic becomes an ordinary error
// job-run status instead of crashing the dispatcher.
func invokeHandler(jobCtx *module.JobContext, handler module.Handler, data json.RawMessage) (result *module.HandlerResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic: %v\n%s", r, panicStack())
		}
	}()
	return handler(jobCtx, data)
}

func panicStack() string {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return strings.TrimSpace(string(buf[:n]))
}
