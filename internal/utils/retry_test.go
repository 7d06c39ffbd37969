package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithRetry(t *testing.T) {
	cases := []struct {
		name      string
		failures  int
		retries   uint
		wantCalls int
		wantErr   string
	}{
		{name: "first attempt", failures: 0, retries: 3, wantCalls: 1},
		{name: "recovers", failures: 1, retries: 3, wantCalls: 2},
		{name: "exhausted", failures: 5, retries: 2, wantCalls: 2, wantErr: "head height failed after 2 attempts: unavailable"},
		{name: "zero retries still tries once", failures: 5, retries: 0, wantCalls: 1, wantErr: "after 1 attempts"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			height, err := WithRetry(context.Background(), tc.retries, "head height", func(context.Context) (uint64, error) {
				calls++
				if calls <= tc.failures {
					return 0, errors.New("unavailable")
				}
				return 7, nil
			})
			assert.Equal(t, tc.wantCalls, calls)
			if tc.wantErr != "" {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, uint64(7), height)
		})
	}
}

func TestWithRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := WithRetry(ctx, 100, "op", func(context.Context) (int, error) {
		return 0, errors.New("down")
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClock(t *testing.T) {
	var clock Clock
	assert.WithinDuration(t, time.Now(), clock.Time(), time.Second)

	pinned := time.Unix(1_700_000_000, 0)
	clock.Set(pinned)
	clock.Advance(time.Minute)
	assert.Equal(t, pinned.Add(time.Minute), clock.Time())
	assert.Equal(t, uint64(1_700_000_060), clock.Unix())
	assert.Equal(t, time.Minute, clock.Since(pinned))

	clock.Sync()
	assert.WithinDuration(t, time.Now(), clock.Time(), time.Second)
}
