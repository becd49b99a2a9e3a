package main

import (
	"context"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// breakerFeed guards a feed source with a circuit breaker so a dead
// upstream is not hammered every tick.
type breakerFeed struct {
	feed VehicleFeedSource
	cb   *gobreaker.CircuitBreaker[[]Vehicle]
}

func newBreakerFeed(name string, feed VehicleFeedSource, failures uint32, openFor time.Duration) *breakerFeed {
	log := feedLogger()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("feed", name).Str("from", from.String()).Str("to", to.String()).Msg("feed circuit breaker state change")
			feedBreakerState.WithLabelValues(name).Set(float64(to))
		},
	}
	return &breakerFeed{feed: feed, cb: gobreaker.NewCircuitBreaker[[]Vehicle](settings)}
}

func (b *breakerFeed) Fetch(ctx context.Context) ([]Vehicle, error) {
	return b.cb.Execute(func() ([]Vehicle, error) {
		return b.feed.Fetch(ctx)
	})
}

func (b *breakerFeed) State() gobreaker.State {
	return b.cb.State()
}
