package mapsync

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultRouteColor is used when a route has no color of its own.
const DefaultRouteColor = "#3b82f6"

// DefaultLineStyle is the paint applied to route lines.
var DefaultLineStyle = LineStyle{
	Color:   DefaultRouteColor,
	Width:   4,
	Opacity: 0.8,
	Join:    "round",
	Cap:     "round",
}

// Route is a named path to draw.
type Route struct {
	ID          string   `json:"id"`
	Name        string   `json:"name,omitempty"`
	Color       string   `json:"color,omitempty"`
	Coordinates []LngLat `json:"coordinates"`
}

// RouteOp is what a route sync did to the view.
type RouteOp int

const (
	RouteNoop RouteOp = iota
	RouteCreated
	RouteUpdated
)

func (op RouteOp) String() string {
	switch op {
	case RouteCreated:
		return "created"
	case RouteUpdated:
		return "updated"
	default:
		return "noop"
	}
}

// SourceID names the geometry source of a route.
func SourceID(routeID string) string { return "route-" + routeID }

// LayerID names the line layer of a route.
func LayerID(routeID string) string { return "route-" + routeID + "-line" }

// RouteLayerSynchronizer keeps at most one route line on a MapView and
// updates its geometry in place.
type RouteLayerSynchronizer struct {
	mu      sync.Mutex
	view    MapView
	style   LineStyle
	current string
	closed  bool
	logger  zerolog.Logger
}

// NewRouteLayerSynchronizer returns a synchronizer bound to view. A nil view
// yields an inert synchronizer.
func NewRouteLayerSynchronizer(view MapView, opts ...Option) *RouteLayerSynchronizer {
	o := buildOptions(opts)
	return &RouteLayerSynchronizer{
		view:   view,
		style:  o.style,
		logger: o.logger,
	}
}

// Sync draws route. If a different route is currently drawn it is torn down
// first.
func (s *RouteLayerSynchronizer) Sync(route Route) RouteOp {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return RouteNoop
	}
	if s.current != "" && s.current != route.ID {
		s.teardown()
	}
	if route.ID == "" || len(route.Coordinates) == 0 || !usable(s.view) {
		return RouteNoop
	}

	src, layer := SourceID(route.ID), LayerID(route.ID)
	path := LineString(route.Coordinates)

	if s.view.HasSource(src) {
		if err := s.view.SetSourceData(src, path); err != nil {
			s.logger.Warn().Err(err).Str("route", route.ID).Msg("route geometry update failed")
			return RouteNoop
		}
		s.current = route.ID
		if !s.view.HasLayer(layer) {
			s.addLayer(route, layer, src)
		}
		return RouteUpdated
	}

	if err := s.view.AddSource(src, path); err != nil {
		s.logger.Warn().Err(err).Str("route", route.ID).Msg("route source create failed")
		return RouteNoop
	}
	s.current = route.ID
	if !s.view.HasLayer(layer) {
		s.addLayer(route, layer, src)
	}
	return RouteCreated
}

func (s *RouteLayerSynchronizer) addLayer(route Route, layer, src string) {
	style := s.style
	if route.Color != "" {
		style.Color = route.Color
	}
	if err := s.view.AddLineLayer(layer, src, style); err != nil {
		s.logger.Warn().Err(err).Str("route", route.ID).Msg("route layer create failed")
	}
}

// Current returns the id of the route currently drawn.
func (s *RouteLayerSynchronizer) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Clear removes the current route, if any.
func (s *RouteLayerSynchronizer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown()
}

// Close removes the current route and retires the synchronizer. It is safe
// to call more than once.
func (s *RouteLayerSynchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown()
	s.closed = true
}

// teardown removes the layer before its source. Either may already be gone.
func (s *RouteLayerSynchronizer) teardown() {
	id := s.current
	s.current = ""
	if id == "" || !usable(s.view) {
		return
	}
	if layer := LayerID(id); s.view.HasLayer(layer) {
		if err := s.view.RemoveLayer(layer); err != nil {
			s.logger.Debug().Err(err).Str("route", id).Msg("route layer already gone")
		}
	}
	if src := SourceID(id); s.view.HasSource(src) {
		if err := s.view.RemoveSource(src); err != nil {
			s.logger.Debug().Err(err).Str("route", id).Msg("route source already gone")
		}
	}
}
