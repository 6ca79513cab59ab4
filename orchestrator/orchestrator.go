// Package orchestrator implements the worker's boot sequence and process
// lifecycle: it wires the module loader, dispatcher, archiver, context
// upserter, replayer, and metrics server together over the bus and
// persistence layer, and coordinates a bounded shutdown drain.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jhacksman/FeedEater-sub001/archiver"
	"github.com/jhacksman/FeedEater-sub001/bus"
	"github.com/jhacksman/FeedEater-sub001/config"
	"github.com/jhacksman/FeedEater-sub001/contextstore"
	"github.com/jhacksman/FeedEater-sub001/contextupsert"
	"github.com/jhacksman/FeedEater-sub001/dispatcher"
	"github.com/jhacksman/FeedEater-sub001/logline"
	"github.com/jhacksman/FeedEater-sub001/metrics"
	"github.com/jhacksman/FeedEater-sub001/module"
	"github.com/jhacksman/FeedEater-sub001/replay"
	"github.com/jhacksman/FeedEater-sub001/settings"
	"github.com/jhacksman/FeedEater-sub001/storage"
)

// Orchestrator owns every long-lived component's lifecycle.
type Orchestrator struct {
	cfg        *config.Config
	logger     *slog.Logger
	logHandler *logline.Handler

	bus          *bus.Bus
	store        *storage.Store
	settings     *settings.Client
	archiver     *archiver.Archiver
	upserter     *contextupsert.Upserter
	dispatcher   *dispatcher.Dispatcher
	metricsSrv   *metrics.Server
	modulesWatch func()

	runtimes map[string]*module.Runtime
	failed   map[string]error

	stopFuncs []func()
	mu        sync.Mutex
}

// New constructs an Orchestrator bound to cfg. logHandler, if non-nil, has
// its bus publisher attached once Boot establishes the bus connection, so
// feedeater.worker.log mirroring comes alive without the caller needing to
// sequence bus setup itself.
func New(cfg *config.Config, logger *slog.Logger, logHandler *logline.Handler) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{cfg: cfg, logger: logger, logHandler: logHandler}
}

// Boot brings the worker up in order:
//
//	connect bus -> open DB pool -> fetch system settings -> ensure
//	context-store dimension -> start archiver -> discover/load modules ->
//	subscribe job-run wildcard and start dispatcher -> schedule cron jobs ->
//	wire external triggers -> start context upserter -> run replay.
func (o *Orchestrator) Boot(ctx context.Context) error {
	b, err := bus.Connect(o.cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("connect bus: %w", err)
	}
	o.bus = b
	if o.logHandler != nil {
		o.logHandler.SetBus(b)
	}

	store, err := storage.Open(ctx, o.cfg.DatabaseURL, o.logger)
	if err != nil {
		o.bus.Drain(ctx)
		return fmt.Errorf("open database: %w", err)
	}
	o.store = store

	o.settings = settings.New(o.cfg.APIBaseURL, o.cfg.InternalToken, o.logger)
	sysRaw, err := o.settings.FetchSettings(ctx, "system")
	embedDim := o.cfg.EmbedDim
	lookbackMinutes := o.cfg.BusHistoryMinutesDefault
	if err != nil {
		o.logger.Warn("failed to fetch system settings, using configured defaults", "error", err)
	} else {
		sys := settings.ParseSystemSettings(sysRaw)
		embedDim = sys.OllamaEmbedDim
		lookbackMinutes = sys.DashboardBusHistoryMinutes
	}

	contextstore.Ensure(ctx, o.store, embedDim)

	o.archiver = archiver.New(o.store, o.logger)
	stopArchiver, err := o.archiver.Start(ctx, o.bus)
	if err != nil {
		return fmt.Errorf("start archiver: %w", err)
	}
	o.track(stopArchiver)

	manifests, discoverFailed, err := module.Discover(o.cfg.ModulesDir)
	if err != nil {
		o.logger.Error("module discovery failed, continuing with no modules", "error", err)
	}
	runtimes, loadFailed := module.Load(manifests, o.logger)
	o.runtimes = runtimes
	o.failed = mergeFailed(discoverFailed, loadFailed)
	for name, ferr := range o.failed {
		o.logger.Error("module unavailable", "module", name, "error", ferr)
	}

	o.dispatcher = dispatcher.New(o.store, o.resolveModule, o.buildJobContext, 0, o.logger)
	stopDispatcher, err := o.dispatcher.Start(ctx, o.bus)
	if err != nil {
		return fmt.Errorf("start dispatcher: %w", err)
	}
	o.track(stopDispatcher)

	o.scheduleCronJobs(ctx)
	o.wireExternalTriggers(ctx)

	o.upserter = contextupsert.New(o.store, embedDim, o.logger)
	stopUpserter, err := o.upserter.Start(ctx, o.bus)
	if err != nil {
		return fmt.Errorf("start context upserter: %w", err)
	}
	o.track(stopUpserter)

	if err := replay.Run(ctx, o.bus, o.store, lookbackMinutes, o.logger); err != nil {
		o.logger.Error("replay failed, continuing", "error", err)
	}

	o.metricsSrv = metrics.Serve(o.cfg.MetricsAddr)

	if stop, err := module.WatchForNewManifests(o.cfg.ModulesDir, o.logger); err == nil {
		o.modulesWatch = stop
	} else {
		o.logger.Warn("module directory watch unavailable", "error", err)
	}

	return nil
}

func (o *Orchestrator) track(stop func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopFuncs = append(o.stopFuncs, stop)
}

func (o *Orchestrator) resolveModule(moduleName string) (*module.Runtime, bool) {
	rt, ok := o.runtimes[moduleName]
	return rt, ok
}

func (o *Orchestrator) buildJobContext(ctx context.Context, moduleName, queue, job string) *module.JobContext {
	return &module.JobContext{
		Context:               ctx,
		ModuleName:             moduleName,
		ModulesDir:             o.cfg.ModulesDir,
		DB:                     o.store,
		Bus:                    o.bus,
		Codec:                  module.CanonicalCodec{},
		FetchInternalSettings:  o.settings.FetchSettings,
		Logger:                 o.logger,
	}
}

func (o *Orchestrator) scheduleCronJobs(ctx context.Context) {
	for name, rt := range o.runtimes {
		for _, j := range rt.Manifest.Jobs {
			if j.Schedule == "" {
				continue
			}
			cancel := dispatcher.ScheduleCronJob(ctx, o.bus, name, j.Queue, j.Name, j.Schedule, o.logger)
			o.track(cancel)
		}
	}
}

func (o *Orchestrator) wireExternalTriggers(ctx context.Context) {
	var bindings []dispatcher.ExternalTriggerBinding
	for name, rt := range o.runtimes {
		for _, j := range rt.Manifest.Jobs {
			if j.TriggeredBy == "" {
				continue
			}
			bindings = append(bindings, dispatcher.ExternalTriggerBinding{
				Module:  name,
				Queue:   j.Queue,
				Job:     j.Name,
				Subject: j.TriggeredBy,
			})
		}
	}
	if len(bindings) == 0 {
		return
	}
	stop, err := dispatcher.SubscribeExternalTriggers(o.bus, bindings, o.logger)
	if err != nil {
		o.logger.Error("failed to wire external triggers, continuing", "error", err)
		return
	}
	o.track(stop)
}

func mergeFailed(a, b map[string]error) map[string]error {
	out := make(map[string]error, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// Shutdown cancels all cron timers and subscription loops and waits up to
// the configured shutdown timeout for in-flight handlers, then closes the
// database and bus connections.
func (o *Orchestrator) Shutdown(timeout time.Duration) {
	if o.modulesWatch != nil {
		o.modulesWatch()
	}

	done := make(chan struct{})
	go func() {
		o.mu.Lock()
		stopFuncs := o.stopFuncs
		o.mu.Unlock()
		for _, stop := range stopFuncs {
			stop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		o.logger.Warn("shutdown timed out waiting for in-flight handlers")
	}

	if o.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.metricsSrv.Shutdown(ctx)
	}
	if o.store != nil {
		_ = o.store.Close()
	}
	if o.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_ = o.bus.Drain(ctx)
	}
}
