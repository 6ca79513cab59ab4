package cronengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleEveryMinuteWildcard(t *testing.T) {
	ctx, cancelCtx := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelCtx()

	var mu sync.Mutex
	var errs []error

	cancel := Schedule(ctx, "* * * * *", func(at time.Time) {}, func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	})
	defer cancel()

	mu.Lock()
	defer mu.Unlock()
	assert.Empty(t, errs)
}

func TestScheduleRejectsNonWildcardHour(t *testing.T) {
	ctx := context.Background()
	done := make(chan error, 1)

	cancel := Schedule(ctx, "*/5 3 * * *", func(at time.Time) {}, func(err error) {
		done <- err
	})
	defer cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected onError for restricted hour field")
	}
}

func TestScheduleRejectsZeroStepMinute(t *testing.T) {
	ctx := context.Background()
	done := make(chan error, 1)

	cancel := Schedule(ctx, "*/0 * * * *", func(at time.Time) {}, func(err error) {
		done <- err
	})
	defer cancel()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected onError for */0")
	}
}

type immediateSchedule struct{}

func (immediateSchedule) Next(t time.Time) time.Time { return t }

func TestRunLoopPanicRoutedToOnError(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	errCh := make(chan error, 1)
	go runLoop(ctx, immediateSchedule{}, func(at time.Time) {
		panic("boom")
	}, func(err error) {
		select {
		case errCh <- err:
		default:
		}
		cancelCtx()
	})

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected onError from panicking onTick")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	ctx := context.Background()
	cancel := Schedule(ctx, "* * * * *", func(at time.Time) {}, func(err error) {})
	cancel()
	assert.NotPanics(t, func() { cancel() })
}

func TestValidMinuteField(t *testing.T) {
	cases := map[string]bool{
		"*":    true,
		"*/5":  true,
		"*/0":  false,
		"0":    true,
		"59":   true,
		"60":   false,
		"-1":   false,
		"abc":  false,
		"*/":   false,
	}
	for field, want := range cases {
		assert.Equal(t, want, validMinuteField(field), "field %q", field)
	}
}

func TestParseRestrictedFieldCount(t *testing.T) {
	_, err := parseRestricted("* * *")
	require.Error(t, err)
}
