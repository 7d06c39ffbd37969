// Package quorum merges several event sources into one stream that only yields an event once
// enough distinct sources have reported it.
package quorum

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/movementlabsxyz/suzuka/internal/utils"
)

// Source is one independent view of the same event feed. The channel closing ends the source.
type Source[E comparable] struct {
	ID     string
	Events <-chan E
}

type eventInfo struct {
	sources  map[string]struct{}
	deadline time.Time
}

// Metrics counts what a stream emits and drops. One instance may be shared by several streams.
type Metrics struct {
	emitted prometheus.Counter
	expired prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		emitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suzuka",
			Subsystem: "quorum",
			Name:      "events_emitted_total",
			Help:      "number of events that reached the quorum threshold",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "suzuka",
			Subsystem: "quorum",
			Name:      "events_expired_total",
			Help:      "number of events evicted before reaching the quorum threshold",
		}),
	}
	if reg == nil {
		return m, nil
	}
	return m, errors.Join(reg.Register(m.emitted), reg.Register(m.expired))
}

type options struct {
	clock   *utils.Clock
	metrics *Metrics
}

type Option func(*options)

func WithClock(c *utils.Clock) Option {
	return func(o *options) { o.clock = c }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Stream is not safe for concurrent use; Run adapts it to a channel.
type Stream[E comparable] struct {
	sources   []Source[E]
	threshold int
	ttl       time.Duration
	clock     *utils.Clock
	metrics   *Metrics

	pending   map[E]*eventInfo
	processed map[E]struct{}
}

func New[E comparable](sources []Source[E], threshold int, ttl time.Duration, opts ...Option) *Stream[E] {
	o := options{clock: &utils.Clock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics, _ = NewMetrics(nil)
	}
	return &Stream[E]{
		sources:   append([]Source[E](nil), sources...),
		threshold: max(threshold, 1),
		ttl:       ttl,
		clock:     o.clock,
		metrics:   o.metrics,
		pending:   make(map[E]*eventInfo),
		processed: make(map[E]struct{}),
	}
}

// Next blocks until an event reaches the threshold. It returns false once fewer sources remain
// than the threshold requires, or when ctx is done.
func (s *Stream[E]) Next(ctx context.Context) (E, bool) {
	var zero E
	for {
		if len(s.sources) < s.threshold {
			return zero, false
		}
		s.evictExpired()

		progressed := false
		for i := len(s.sources) - 1; i >= 0; i-- {
			select {
			case ev, ok := <-s.sources[i].Events:
				progressed = true
				if !ok {
					if s.removeSource(i) {
						return zero, false
					}
					continue
				}
				if s.observe(s.sources[i].ID, ev) {
					return ev, true
				}
			default:
			}
		}
		if progressed {
			continue
		}

		chosen, ev, ok, err := s.wait(ctx)
		if err != nil {
			return zero, false
		}
		if chosen < 0 {
			continue
		}
		if !ok {
			if s.removeSource(chosen) {
				return zero, false
			}
			continue
		}
		if s.observe(s.sources[chosen].ID, ev) {
			return ev, true
		}
	}
}

// Run emits events on the returned channel until the stream ends or ctx is done.
func (s *Stream[E]) Run(ctx context.Context) <-chan E {
	out := make(chan E)
	go func() {
		defer close(out)
		for {
			ev, ok := s.Next(ctx)
			if !ok {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (s *Stream[E]) evictExpired() {
	now := s.clock.Time()
	for ev, info := range s.pending {
		if !now.Before(info.deadline) {
			s.expire(ev, info)
		}
	}
}

func (s *Stream[E]) expire(ev E, info *eventInfo) {
	delete(s.pending, ev)
	s.processed[ev] = struct{}{}
	s.metrics.expired.Inc()
	slog.Debug("Quorum event expired", "event", ev, "sources", len(info.sources))
}

// observe records a vote and reports whether the event just reached the threshold. A vote that
// arrives at or after the event's deadline expires it instead.
func (s *Stream[E]) observe(sourceID string, ev E) bool {
	if _, done := s.processed[ev]; done {
		return false
	}
	now := s.clock.Time()
	info, ok := s.pending[ev]
	if ok && !now.Before(info.deadline) {
		s.expire(ev, info)
		return false
	}
	if !ok {
		info = &eventInfo{sources: make(map[string]struct{}), deadline: now.Add(s.ttl)}
		s.pending[ev] = info
	}
	info.sources[sourceID] = struct{}{}
	if len(info.sources) < s.threshold {
		return false
	}
	delete(s.pending, ev)
	s.processed[ev] = struct{}{}
	s.metrics.emitted.Inc()
	return true
}

// removeSource drops an ended source and reports whether the stream has ended as a result.
func (s *Stream[E]) removeSource(i int) bool {
	slog.Warn("Quorum source ended", "source", s.sources[i].ID)
	s.sources = append(s.sources[:i], s.sources[i+1:]...)
	if len(s.sources) < s.threshold {
		slog.Warn("Not enough quorum sources left, ending stream", "remaining", len(s.sources), "threshold", s.threshold)
		return true
	}
	return false
}

// wait blocks on every source, the earliest pending deadline and ctx. chosen is the index of the
// source that delivered, or -1 when a deadline passed.
func (s *Stream[E]) wait(ctx context.Context) (chosen int, ev E, ok bool, err error) {
	cases := make([]reflect.SelectCase, 0, len(s.sources)+2)
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())})

	var timerCh <-chan time.Time
	if deadline, found := s.earliestDeadline(); found {
		timer := time.NewTimer(max(deadline.Sub(s.clock.Time()), 0))
		defer timer.Stop()
		timerCh = timer.C
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timerCh)})
	for _, src := range s.sources {
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(src.Events)})
	}

	i, v, recvOK := reflect.Select(cases)
	switch i {
	case 0:
		return -1, ev, false, ctx.Err()
	case 1:
		return -1, ev, false, nil
	}
	if recvOK {
		ev = v.Interface().(E)
	}
	return i - 2, ev, recvOK, nil
}

func (s *Stream[E]) earliestDeadline() (time.Time, bool) {
	var (
		earliest time.Time
		found    bool
	)
	for _, info := range s.pending {
		if !found || info.deadline.Before(earliest) {
			earliest = info.deadline
			found = true
		}
	}
	return earliest, found
}
