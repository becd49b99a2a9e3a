package main

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"campus-bus-tracker/internal/logging"
	"campus-bus-tracker/internal/mapsync"
	"campus-bus-tracker/internal/mapview"
)

// session binds one connected map view to its synchronizers. It lives
// exactly as long as the websocket behind the view.
type session struct {
	id      string
	view    *mapview.Remote
	markers *mapsync.MarkerSynchronizer
	route   *mapsync.RouteLayerSynchronizer
	routes  routeCatalog
	log     zerolog.Logger

	mu       sync.Mutex
	roster   []mapsync.VehiclePosition
	selected string
	closed   bool
}

func newSession(sink mapview.Sink, routes routeCatalog) *session {
	id := uuid.NewString()
	log := logging.With("session").With().Str("session", id).Logger()
	s := &session{
		id:     id,
		view:   mapview.NewRemote(sink),
		routes: routes,
		log:    log,
	}
	s.markers = mapsync.NewMarkerSynchronizer(s.view, s.selectVehicle, mapsync.WithLogger(log))
	s.route = mapsync.NewRouteLayerSynchronizer(s.view, mapsync.WithLogger(log))
	return s
}

// update reconciles the view with a new roster.
func (s *session) update(vehicles []Vehicle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.roster = positions(vehicles)

	// A selected vehicle that left the feed is deselected.
	if s.selected != "" && !s.inRoster(s.selected) {
		s.selected = ""
	}
	stats := s.markers.Sync(s.roster, s.selected)
	recordMarkerStats(stats)
	if stats.Created+stats.Removed > 0 {
		s.log.Debug().Int("created", stats.Created).Int("removed", stats.Removed).Int("moved", stats.Moved).Msg("markers synced")
	}
	s.syncRoute()
}

// selectVehicle is the marker activation callback.
func (s *session) selectVehicle(v mapsync.VehiclePosition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.log.Info().Str("vehicle", v.ID).Str("route", v.RouteNumber).Msg("vehicle selected")
	s.selected = v.ID
	s.markers.Select(s.selected)
	s.syncRoute()
}

func (s *session) clearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.selected = ""
	s.markers.Select("")
	s.syncRoute()
}

// syncRoute draws the route of the selected vehicle, or clears it. Must be
// called with s.mu held.
func (s *session) syncRoute() {
	if s.selected == "" {
		s.route.Clear()
		return
	}
	v, ok := s.markers.Vehicle(s.selected)
	if !ok {
		s.route.Clear()
		return
	}
	r, ok := s.routes.lookup(v)
	if !ok {
		s.route.Clear()
		return
	}
	recordRouteOp(s.route.Sync(r))
}

func (s *session) inRoster(id string) bool {
	for _, v := range s.roster {
		if v.ID == id {
			return true
		}
	}
	return false
}

// activate forwards a client click to the view.
func (s *session) activate(markerID string) bool {
	return s.view.Activate(markerID)
}

func (s *session) selectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// close releases everything the synchronizers own, then disposes the view.
// It is safe to call more than once.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.markers.Close()
	s.route.Close()
	s.view.Dispose()
}
