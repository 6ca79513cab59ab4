// Package cronengine implements the worker's minute-granularity scheduler.
// It supports exactly three five-field patterns — `*`, `*/N`, and a fixed
// minute, with every other field pinned to `*` — and delegates minute-field
// parsing to robfig/cron's standard parser so the accepted syntax matches
// real cron rather than a bespoke subset, while Schedule itself enforces
// the narrower contract. The run loop cancels via a context and waits on a
// WaitGroup, sleeping until the next computed tick rather than polling on
// a fixed interval.
package cronengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// OnTick is invoked once per scheduled tick with the tick's truncated time.
type OnTick func(at time.Time)

// OnError is invoked for handler errors and for a malformed expression.
// After an expression error, no further ticks occur.
type OnError func(err error)

// Cancel stops a scheduled job. Idempotent; a pending tick is dropped.
type Cancel func()

var standardParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow,
)

// Schedule parses expr (a standard five-field cron expression restricted to
// a minute-field grammar of `*`, `*/N`, or a fixed 0-59 minute, with
// hour/dom/month/dow pinned to `*`) and begins invoking onTick at each
// matching minute boundary. A malformed or unsupported expression invokes
// onError exactly once and schedules no ticks; the returned cancel is still
// safe to call.
func Schedule(ctx context.Context, expr string, onTick OnTick, onError OnError) Cancel {
	sched, err := parseRestricted(expr)
	runCtx, cancel := context.WithCancel(ctx)
	if err != nil {
		go onError(err)
		return cancel
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runLoop(runCtx, sched, onTick, onError)
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

func runLoop(ctx context.Context, sched cron.Schedule, onTick OnTick, onError OnError) {
	for {
		now := time.Now()
		nextAt := sched.Next(now).Truncate(time.Second)
		timer := time.NewTimer(time.Until(nextAt))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						onError(fmt.Errorf("onTick panic: %v", r))
					}
				}()
				onTick(nextAt)
			}()
		}
	}
}

// parseRestricted validates expr against the narrower minute-only grammar
// before handing it to the standard cron parser, so a syntactically valid
// but out-of-contract expression (e.g. a restricted hour field) is rejected
// rather than silently accepted with unintended semantics.
func parseRestricted(expr string) (cron.Schedule, error) {
	fields := splitFields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("cronengine: expected 5 fields, got %d in %q", len(fields), expr)
	}
	if fields[1] != "*" || fields[2] != "*" || fields[3] != "*" || fields[4] != "*" {
		return nil, fmt.Errorf("cronengine: only the minute field may be non-wildcard, got %q", expr)
	}
	if !validMinuteField(fields[0]) {
		return nil, fmt.Errorf("cronengine: unsupported minute field %q", fields[0])
	}
	return standardParser.Parse(expr)
}

func validMinuteField(field string) bool {
	if field == "*" {
		return true
	}
	if len(field) > 2 && field[0:2] == "*/" {
		n := field[2:]
		return isPositiveInt(n)
	}
	if isPositiveInt(field) || field == "0" {
		var v int
		_, err := fmt.Sscanf(field, "%d", &v)
		return err == nil && v >= 0 && v <= 59
	}
	return false
}

func isPositiveInt(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != "0"
}

func splitFields(expr string) []string {
	var fields []string
	var cur []byte
	for i := 0; i < len(expr); i++ {
		if expr[i] == ' ' || expr[i] == '\t' {
			if len(cur) > 0 {
				fields = append(fields, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, expr[i])
	}
	if len(cur) > 0 {
		fields = append(fields, string(cur))
	}
	return fields
}
