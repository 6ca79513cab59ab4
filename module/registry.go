package module

import "sync"

// HandlerResult is what a handler returns on success. Metrics, if non-nil,
// is merged into the job run's metricsJson alongside the dispatcher's own
// durationMs.
type HandlerResult struct {
	Metrics map[string]interface{}
}

// Handler executes one job invocation. data is the job-run event's raw
// payload. A nil *HandlerResult is equivalent to &HandlerResult{}.
type Handler func(ctx *JobContext, data []byte) (*HandlerResult, error)

// HandlerTable is the shape a module's runtime entry populates: handlers by
// queue then job name.
type HandlerTable map[string]map[string]Handler

var (
	registryMu sync.Mutex
	registry   = map[string]HandlerTable{}
)

// RegisterEntry associates an entry name (a module's runtime.entry) with
// its handler table. Modules call this from an init() func, registering
// into a plain map since this worker has no component/schema registry of
// its own.
func RegisterEntry(entry string, handlers HandlerTable) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[entry] = handlers
}

// LookupEntry returns the handler table registered under entry, if any.
func LookupEntry(entry string) (HandlerTable, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	h, ok := registry[entry]
	return h, ok
}
