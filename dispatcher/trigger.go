package dispatcher

import (
	"encoding/json"
	"log/slog"

	"github.com/jhacksman/FeedEater-sub001/bus"
	"github.com/jhacksman/FeedEater-sub001/wire"
)

// ExternalTriggerBinding declares one job's external-trigger subscription.
type ExternalTriggerBinding struct {
	Module  string
	Queue   string
	Job     string
	Subject string
}

type triggerData struct {
	Trigger struct {
		Subject   string `json:"subject"`
		MessageID string `json:"messageId,omitempty"`
	} `json:"trigger"`
}

// SubscribeExternalTriggers wires one bus subscription per binding: each
// inbound message is parsed as a MessageCreated envelope or bare
// NormalizedMessage, and a canonical job-run event with
// trigger={type:"event", subject, messageId} is republished on
// feedeater.jobs.<module>.<queue>.<job>.
func SubscribeExternalTriggers(b *bus.Bus, bindings []ExternalTriggerBinding, logger *slog.Logger) (stop func(), err error) {
	if logger == nil {
		logger = slog.Default()
	}
	var unsubs []func()
	for _, binding := range bindings {
		binding := binding
		unsub, err := b.Subscribe(binding.Subject, func(subject string, data []byte) {
			handleExternalTrigger(b, binding, data, logger)
		})
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			return nil, err
		}
		unsubs = append(unsubs, unsub)
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}, nil
}

func handleExternalTrigger(b *bus.Bus, binding ExternalTriggerBinding, data []byte, logger *slog.Logger) {
	msg, err := wire.DecodeMessageCreated(data)
	if err != nil {
		logger.Error("failed to decode external-trigger payload, dropping", "subject", binding.Subject, "error", err)
		return
	}

	inner := triggerData{}
	inner.Trigger.Subject = binding.Subject
	inner.Trigger.MessageID = msg.ID
	innerData, err := json.Marshal(inner)
	if err != nil {
		logger.Error("failed to encode external-trigger data", "subject", binding.Subject, "error", err)
		return
	}

	ev := wire.JobRunEvent{
		Type:   "JobRun",
		Module: binding.Module,
		Queue:  binding.Queue,
		Job:    binding.Job,
		Trigger: wire.Trigger{
			Type:      wire.TriggerEvent,
			Subject:   binding.Subject,
			MessageID: msg.ID,
		},
		Data: innerData,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Error("failed to encode job-run event", "subject", binding.Subject, "error", err)
		return
	}

	subject := bus.JobRunSubject(binding.Module, binding.Queue, binding.Job)
	if err := b.Publish(subject, payload); err != nil {
		logger.Error("failed to publish job-run event", "subject", subject, "error", err)
	}
}
