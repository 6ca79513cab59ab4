package bus

import "fmt"

// Bus subject helpers. FeedEater uses plain string subjects rather than a
// typed-subject wrapper because every subject here carries a decode that
// must tolerate more than one wire shape (see wire.DecodeMessageCreated);
// explicit decode/encode at the call site keeps that tolerance visible.

// MessageCreatedSubject is where a module publishes normalized messages.
func MessageCreatedSubject(module string) string {
	return fmt.Sprintf("feedeater.%s.messageCreated", module)
}

// ContextUpdatedSubject is where a module publishes context projections.
func ContextUpdatedSubject(module string) string {
	return fmt.Sprintf("feedeater.%s.contextUpdated", module)
}

// ContextUpdatedWildcard subscribes across every module's contextUpdated subject.
const ContextUpdatedWildcard = "feedeater.*.contextUpdated"

// JobRunSubject is where a canonical job-run event is published for a
// specific (module, queue, job) triple.
func JobRunSubject(module, queue, job string) string {
	return fmt.Sprintf("feedeater.jobs.%s.%s.%s", module, queue, job)
}

// JobRunWildcard subscribes across every job-run subject; the dispatcher
// (C7) is the sole subscriber.
const JobRunWildcard = "feedeater.jobs.>"

// WorkerLogSubject carries the orchestrator's structured log mirror.
const WorkerLogSubject = "feedeater.worker.log"
