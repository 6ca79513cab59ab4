package module

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jhacksman/FeedEater-sub001/storage"
	"github.com/jhacksman/FeedEater-sub001/wire"
)

// Publisher is the bus capability handed to job handlers. *bus.Bus
// satisfies it; it is expressed as an interface here so module does not
// import bus, keeping the dependency direction from bus -> module (the
// orchestrator wires both together).
type Publisher interface {
	Publish(subject string, data []byte) error
}

// SettingsFetcher fetches a module's settings (see settings.Client.FetchSettings).
type SettingsFetcher func(ctx context.Context, moduleName string) (map[string]*string, error)

// Queue is the in-process enqueue shim granted to job handlers. Add
// publishes a job-run event with trigger={type:"event", subject:"internal"}.
type Queue struct {
	module    string
	queueName string
	publisher Publisher
}

// Add enqueues jobName with data, publishing a canonical job-run event on
// feedeater.jobs.<module>.<queue>.<job> with an internal trigger.
func (q *Queue) Add(jobName string, data json.RawMessage) error {
	ev := wire.JobRunEvent{
		Type:    "JobRun",
		Module:  q.module,
		Queue:   q.queueName,
		Job:     jobName,
		Trigger: wire.Trigger{Type: wire.TriggerEvent, Subject: "internal"},
		Data:    data,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode job-run event: %w", err)
	}
	subject := fmt.Sprintf("feedeater.jobs.%s.%s.%s", q.module, q.queueName, jobName)
	return q.publisher.Publish(subject, payload)
}

// JobContext is the per-job execution context granted to a handler.
type JobContext struct {
	Context    context.Context
	ModuleName string
	ModulesDir string

	DB                    *storage.Store
	Bus                   Publisher
	Codec                 CanonicalCodec
	FetchInternalSettings SettingsFetcher

	Logger *slog.Logger
}

// GetQueue returns the enqueue shim bound to this module and a named queue.
func (jc *JobContext) GetQueue(name string) *Queue {
	return &Queue{module: jc.ModuleName, queueName: name, publisher: jc.Bus}
}

// CanonicalCodec is the canonical JSON encoder handed to job handlers.
// encoding/json's deterministic struct field ordering and sorted map keys
// are sufficient here; a canonical-JSON third-party library would add
// surface with no corresponding need.
type CanonicalCodec struct{}

// Marshal encodes v as canonical (map-keys-sorted) JSON. encoding/json
// already sorts struct-tag fields in declaration order and map keys
// lexicographically, which is sufficient determinism for this worker's
// payloads.
func (CanonicalCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes data into v.
func (CanonicalCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Runtime is a loaded module: its manifest plus resolved handler table.
type Runtime struct {
	Manifest Manifest
	Handlers HandlerTable
}

// Load resolves manifests against the handler registry, producing one
// Runtime per manifest. A manifest with no RuntimeConfig, or whose entry is
// not registered, is kept with an empty handler table and recorded in
// failed only in the latter case.
func Load(manifests []Manifest, logger *slog.Logger) (runtimes map[string]*Runtime, failed map[string]error) {
	if logger == nil {
		logger = slog.Default()
	}
	runtimes = make(map[string]*Runtime, len(manifests))
	failed = make(map[string]error)

	for _, m := range manifests {
		rt := &Runtime{Manifest: m, Handlers: HandlerTable{}}
		if m.Runtime != nil && m.Runtime.Entry != "" {
			handlers, ok := LookupEntry(m.Runtime.Entry)
			if !ok {
				failed[m.Name] = fmt.Errorf("no handler table registered for entry %q", m.Runtime.Entry)
				logger.Error("module load failed", "module", m.Name, "entry", m.Runtime.Entry, "error", failed[m.Name])
				runtimes[m.Name] = rt
				continue
			}
			rt.Handlers = handlers
		}
		runtimes[m.Name] = rt
	}
	return runtimes, failed
}

// HandlerFor resolves the handler for (queue, job) in this runtime's handler
// table, or reports ok=false.
func (r *Runtime) HandlerFor(queue, job string) (Handler, bool) {
	byJob, ok := r.Handlers[queue]
	if !ok {
		return nil, false
	}
	h, ok := byJob[job]
	return h, ok
}
