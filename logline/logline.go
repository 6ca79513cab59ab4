// Package logline wraps log/slog with a JSON handler to stderr and
// additionally mirrors warn-and-above records onto the feedeater.worker.log
// bus subject, never blocking the caller.
package logline

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"github.com/jhacksman/FeedEater-sub001/wire"
)

// BusPublisher is the narrow publish capability the handler needs.
type BusPublisher interface {
	Publish(subject string, data []byte) error
}

// Handler wraps slog.JSONHandler, additionally publishing a
// feedeater.worker.log message for every record at the mirror level passed
// to NewHandler or above.
type Handler struct {
	inner       slog.Handler
	mirrorLevel slog.Level
	dropped     *int64

	busMu sync.RWMutex
	bus   BusPublisher
}

// NewHandler builds a Handler writing JSON to stderr at minLevel, mirroring
// records at mirrorLevel and above onto bus (bus may be nil before the bus
// connection is established, in which case mirroring is a no-op until
// SetBus is called).
func NewHandler(minLevel, mirrorLevel slog.Level, bus BusPublisher, dropped *int64) *Handler {
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: minLevel})
	return &Handler{inner: inner, bus: bus, mirrorLevel: mirrorLevel, dropped: dropped}
}

// SetBus rebinds the handler's bus publisher, enabling mirroring once a
// bus connection becomes available (the logger is constructed before the
// orchestrator connects to the bus, so it starts with a nil publisher).
func (h *Handler) SetBus(bus BusPublisher) {
	h.busMu.Lock()
	defer h.busMu.Unlock()
	h.bus = bus
}

func (h *Handler) currentBus() BusPublisher {
	h.busMu.RLock()
	defer h.busMu.RUnlock()
	return h.bus
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	if err := h.inner.Handle(ctx, record); err != nil {
		return err
	}
	bus := h.currentBus()
	if bus == nil || record.Level < h.mirrorLevel {
		return nil
	}
	h.publishMirror(bus, record)
	return nil
}

func (h *Handler) publishMirror(bus BusPublisher, record slog.Record) {
	meta := make(map[string]interface{})
	record.Attrs(func(a slog.Attr) bool {
		meta[a.Key] = a.Value.Any()
		return true
	})

	ev := wire.WorkerLogEvent{
		Level:   levelToWire(record.Level),
		Module:  "worker",
		Source:  "process",
		At:      record.Time,
		Message: record.Message,
		Meta:    meta,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.incDropped()
		return
	}

	// Publish is non-blocking in the NATS client itself (it enqueues onto
	// the connection's outbound buffer); a full buffer returns an error
	// rather than stalling the caller, so the failure path here is simply
	// "count and move on" rather than a select/default against a channel.
	if err := bus.Publish(wire.WorkerLogSubject, payload); err != nil {
		h.incDropped()
	}
}

func (h *Handler) incDropped() {
	if h.dropped != nil {
		*h.dropped++
	}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs), bus: h.currentBus(), mirrorLevel: h.mirrorLevel, dropped: h.dropped}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), bus: h.currentBus(), mirrorLevel: h.mirrorLevel, dropped: h.dropped}
}

func levelToWire(level slog.Level) wire.LogLevel {
	switch {
	case level >= slog.LevelError:
		return wire.LogError
	case level >= slog.LevelWarn:
		return wire.LogWarn
	case level >= slog.LevelInfo:
		return wire.LogInfo
	default:
		return wire.LogDebug
	}
}

// ParseLevel maps FEED_LOG_LEVEL values to slog.Level, defaulting to Info
// for an unrecognized value.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
