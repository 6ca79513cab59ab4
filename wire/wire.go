// Package wire defines the JSON payloads exchanged over the bus subjects.
// Types here are the canonical wire format the archiver, dispatcher and
// replayer decode and encode against; the context upserter decodes the same
// ContextUpdated JSON shape through its own private copy of these types.
package wire

import (
	"encoding/json"
	"time"
)

// MessageSource identifies the module and optional stream a normalized
// message originated from.
type MessageSource struct {
	Module string `json:"module"`
	Stream string `json:"stream,omitempty"`
}

// ContextRef points a normalized message at a context row it belongs to.
type ContextRef struct {
	OwnerModule string `json:"ownerModule"`
	SourceKey   string `json:"sourceKey"`
}

// NormalizedMessage is the canonical message shape published by modules.
// Its id is a stable, publisher-assigned UUID the archiver treats as the
// primary key.
type NormalizedMessage struct {
	ID              string         `json:"id"`
	CreatedAt       time.Time      `json:"createdAt"`
	Source          MessageSource  `json:"source"`
	Message         string         `json:"Message"`
	From            string         `json:"From,omitempty"`
	IsDirectMention bool           `json:"isDirectMention,omitempty"`
	IsDigest        bool           `json:"isDigest,omitempty"`
	IsSystemMessage bool           `json:"isSystemMessage,omitempty"`
	Likes           *int           `json:"likes,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	ContextRef      *ContextRef    `json:"contextRef,omitempty"`
	FollowMePanel   bool           `json:"followMePanel,omitempty"`
	Realtime        *bool          `json:"realtime,omitempty"`
}

// MessageCreatedEnvelope is the enveloped wire format for
// feedeater.<module>.messageCreated. Publishers may instead send a bare
// NormalizedMessage; DecodeMessageCreated accepts both.
type MessageCreatedEnvelope struct {
	Type    string            `json:"type"`
	Message NormalizedMessage `json:"message"`
}

// DecodeMessageCreated unwraps either wire form of a messageCreated payload.
func DecodeMessageCreated(data []byte) (NormalizedMessage, error) {
	var env MessageCreatedEnvelope
	if err := json.Unmarshal(data, &env); err == nil && env.Type == "MessageCreated" {
		return env.Message, nil
	}

	var bare NormalizedMessage
	if err := json.Unmarshal(data, &bare); err != nil {
		return NormalizedMessage{}, err
	}
	return bare, nil
}

// ContextPayload is the embedded context object inside a ContextUpdated
// event.
type ContextPayload struct {
	OwnerModule  string    `json:"ownerModule"`
	SourceKey    string    `json:"sourceKey,omitempty"`
	SummaryShort string    `json:"summaryShort"`
	SummaryLong  string    `json:"summaryLong"`
	KeyPoints    []string  `json:"keyPoints,omitempty"`
	Embedding    []float32 `json:"embedding,omitempty"`
}

// ContextUpdatedEvent is the payload for feedeater.*.contextUpdated.
type ContextUpdatedEvent struct {
	Type      string         `json:"type"`
	CreatedAt time.Time      `json:"createdAt"`
	MessageID string         `json:"messageId,omitempty"`
	Context   ContextPayload `json:"context"`
}

// TriggerType enumerates the three ways a job-run event can be produced.
type TriggerType string

const (
	TriggerSchedule TriggerType = "schedule"
	TriggerManual   TriggerType = "manual"
	TriggerEvent    TriggerType = "event"
)

// Trigger records how a job-run event came to be published.
type Trigger struct {
	Type      TriggerType `json:"type"`
	Subject   string      `json:"subject,omitempty"`
	MessageID string      `json:"messageId,omitempty"`
}

// JobRunEvent is the canonical job-run wire event published on
// feedeater.jobs.<module>.<queue>.<job>.
type JobRunEvent struct {
	Type        string          `json:"type"`
	Module      string          `json:"module"`
	Queue       string          `json:"queue"`
	Job         string          `json:"job"`
	RequestedAt time.Time       `json:"requestedAt"`
	RunID       string          `json:"runId,omitempty"`
	Trigger     Trigger         `json:"trigger"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// WorkerLogSubject is the subject WorkerLogEvent payloads are published on.
const WorkerLogSubject = "feedeater.worker.log"

// LogLevel enumerates the worker log levels published to
// feedeater.worker.log.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// WorkerLogEvent is published by the orchestrator's log sink.
type WorkerLogEvent struct {
	Level   LogLevel               `json:"level"`
	Module  string                 `json:"module"`
	Source  string                 `json:"source"`
	At      time.Time              `json:"at"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}
