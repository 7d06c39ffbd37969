package quorum

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/movementlabsxyz/suzuka/internal/utils"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type timed struct {
	event int
	delay time.Duration
}

// timedSource emits each event after its delay, measured from the previous one, then ends.
func timedSource(id string, events ...timed) Source[int] {
	ch := make(chan int, len(events))
	go func() {
		defer close(ch)
		for _, e := range events {
			time.Sleep(e.delay)
			ch <- e.event
		}
	}()
	return Source[int]{ID: id, Events: ch}
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func collect(t *testing.T, s *Stream[int]) []int {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	events := []int{}
	for ev := range s.Run(ctx) {
		events = append(events, ev)
	}
	require.NoError(t, ctx.Err(), "stream did not end")
	return events
}

func TestQuorumStream(t *testing.T) {
	tests := []struct {
		name    string
		sources []Source[int]
		want    []int
	}{
		{
			name: "all events reach threshold",
			sources: []Source[int]{
				timedSource("s1", timed{1, ms(100)}, timed{2, ms(100)}, timed{3, ms(100)}),
				timedSource("s2", timed{1, ms(150)}, timed{2, ms(150)}, timed{3, ms(150)}),
				timedSource("s3", timed{1, ms(200)}, timed{2, ms(50)}, timed{3, ms(300)}),
			},
			want: []int{1, 2, 3},
		},
		{
			name: "starvation",
			sources: []Source[int]{
				timedSource("s1", timed{4, ms(100)}),
				timedSource("s2", timed{5, ms(150)}),
				timedSource("s3", timed{6, ms(200)}),
			},
			want: []int{},
		},
		{
			name: "sources end prematurely",
			sources: []Source[int]{
				timedSource("s1", timed{7, ms(100)}, timed{8, ms(100)}, timed{9, ms(100)}),
				timedSource("s2", timed{7, ms(150)}),
				timedSource("s3", timed{7, ms(200)}, timed{8, ms(50)}, timed{9, ms(300)}),
			},
			want: []int{7, 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.sources, 2, 5*time.Second)
			assert.Equal(t, tt.want, collect(t, s))
		})
	}
}

func TestQuorumCountsEachSourceOnce(t *testing.T) {
	a := make(chan int, 4)
	b := make(chan int, 4)
	s := New([]Source[int]{{ID: "a", Events: a}, {ID: "b", Events: b}}, 2, time.Minute)

	a <- 1
	a <- 1
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, ok := s.Next(ctx)
	assert.False(t, ok, "a single source cannot reach a threshold of two")

	b <- 1
	ev, ok := s.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, ev)

	a <- 1
	b <- 1
	a <- 2
	b <- 2
	ev, ok = s.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, 2, ev, "emitted events are never emitted again")

	close(a)
	_, ok = s.Next(context.Background())
	assert.False(t, ok)
}

func TestQuorumExpiresEvents(t *testing.T) {
	clock := &utils.Clock{}
	clock.Set(time.Unix(1_700_000_000, 0))
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	a := make(chan int, 4)
	b := make(chan int, 4)
	c := make(chan int, 4)
	s := New([]Source[int]{{ID: "a", Events: a}, {ID: "b", Events: b}, {ID: "c", Events: c}}, 2, time.Second,
		WithClock(clock), WithMetrics(metrics))

	short := func() context.Context {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		t.Cleanup(cancel)
		return ctx
	}

	a <- 5
	_, ok := s.Next(short())
	assert.False(t, ok)

	clock.Advance(2 * time.Second)
	b <- 5
	_, ok = s.Next(short())
	assert.False(t, ok, "late votes for an expired event are discarded")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.expired))

	b <- 6
	c <- 6
	ev, ok := s.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, 6, ev)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.emitted))
}

func TestQuorumLateVoteDoesNotCount(t *testing.T) {
	clock := &utils.Clock{}
	clock.Set(time.Unix(1_700_000_000, 0))
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	s := New([]Source[int]{{ID: "a"}, {ID: "b"}}, 2, time.Second, WithClock(clock), WithMetrics(metrics))

	assert.False(t, s.observe("a", 5))
	clock.Advance(time.Second)
	assert.False(t, s.observe("b", 5), "the vote landed on the deadline")
	assert.False(t, s.observe("a", 5))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.expired))
	assert.Zero(t, testutil.ToFloat64(metrics.emitted))
	assert.Empty(t, s.pending)
}

func TestQuorumTooFewSources(t *testing.T) {
	a := make(chan int)
	s := New([]Source[int]{{ID: "a", Events: a}}, 2, time.Second)
	_, ok := s.Next(context.Background())
	assert.False(t, ok)
}

func TestRunStopsOnCancel(t *testing.T) {
	a := make(chan int)
	b := make(chan int)
	ctx, cancel := context.WithCancel(context.Background())
	out := New([]Source[int]{{ID: "a", Events: a}, {ID: "b", Events: b}}, 2, time.Second).Run(ctx)
	cancel()
	_, open := <-out
	assert.False(t, open)
}
