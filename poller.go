package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"campus-bus-tracker/internal/logging"
)

// poller maintains periodic fetches and publishes a snapshot when vehicles change.

type poller struct {
	feed              VehicleFeedSource
	minRefreshSeconds int
	publish           func([]Vehicle)
	log               zerolog.Logger
	now               func() time.Time

	mu                sync.Mutex
	lastVehicles      map[string]Vehicle
	mostRecentFetchMs int64
}

func newPoller(feed VehicleFeedSource, minRefreshSeconds int, publish func([]Vehicle)) *poller {
	return &poller{
		feed:              feed,
		minRefreshSeconds: minRefreshSeconds,
		publish:           publish,
		log:               logging.With("poller"),
		now:               time.Now,
		lastVehicles:      make(map[string]Vehicle),
	}
}

func feedLogger() zerolog.Logger { return logging.With("feed") }

func (p *poller) run(ctx context.Context) {
	interval := time.Duration(p.minRefreshSeconds) * time.Second
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			start := time.Now()
			p.tick(ctx)
			elapsed := time.Since(start)
			if p.lastFetchMs() != 0 {
				interval = maxDuration(elapsed/2, time.Duration(p.minRefreshSeconds)*time.Second)
			}
			t.Reset(interval)
		}
	}
}

func (p *poller) tick(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	vehicles, err := p.feed.Fetch(cctx)
	if err != nil {
		feedFetches.WithLabelValues("error").Inc()
		p.log.Warn().Err(err).Msg("poll error")
		return
	}
	feedFetches.WithLabelValues("ok").Inc()
	feedVehicles.Set(float64(len(vehicles)))
	p.log.Debug().Int("vehicles", len(vehicles)).Msg("fetched vehicles")

	changed, snapshot := p.detectChanges(vehicles)
	if changed {
		p.log.Info().Int("vehicles", len(snapshot)).Msg("vehicles updated")
		if p.publish != nil {
			p.publish(snapshot)
		}
	}
}

// detectChanges stamps LastUpdate on moved or new vehicles and reports
// whether anything appeared, moved or disappeared.
func (p *poller) detectChanges(in []Vehicle) (bool, []Vehicle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	nowMs := p.now().UnixMilli()
	p.mostRecentFetchMs = nowMs

	changed := false
	current := make(map[string]Vehicle, len(in))
	for _, v := range in {
		prev, ok := p.lastVehicles[v.ID]
		if !ok || prev.Lat != v.Lat || prev.Lon != v.Lon {
			v.LastUpdate = nowMs
			changed = true
		} else {
			v.LastUpdate = prev.LastUpdate
			if prev.RouteNumber != v.RouteNumber || prev.RouteName != v.RouteName {
				changed = true
			}
		}
		current[v.ID] = v
	}
	for id := range p.lastVehicles {
		if _, ok := current[id]; !ok {
			changed = true
			break
		}
	}
	p.lastVehicles = current
	return changed, sortedVehicles(current)
}

// Snapshot returns a copy of the last vehicle list, ordered by id.
func (p *poller) Snapshot() []Vehicle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return sortedVehicles(p.lastVehicles)
}

func (p *poller) lastFetchMs() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mostRecentFetchMs
}

func sortedVehicles(m map[string]Vehicle) []Vehicle {
	out := make([]Vehicle, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
