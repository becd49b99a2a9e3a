package mapsync

import (
	"sync"

	"github.com/rs/zerolog"
)

// SelectFunc is called with the full record of a vehicle whose marker was
// activated.
type SelectFunc func(VehiclePosition)

// SyncStats summarises one marker synchronization pass.
type SyncStats struct {
	Created int
	Moved   int
	Removed int
	Skipped int
}

type trackedMarker struct {
	marker   Marker
	vehicle  VehiclePosition
	selected bool
}

// MarkerSynchronizer maintains one marker per vehicle id on a MapView.
type MarkerSynchronizer struct {
	mu       sync.Mutex
	view     MapView
	onSelect SelectFunc
	tracked  map[string]*trackedMarker
	closed   bool
	logger   zerolog.Logger
}

// NewMarkerSynchronizer returns a synchronizer bound to view. A nil view
// yields an inert synchronizer.
func NewMarkerSynchronizer(view MapView, onSelect SelectFunc, opts ...Option) *MarkerSynchronizer {
	o := buildOptions(opts)
	return &MarkerSynchronizer{
		view:     view,
		onSelect: onSelect,
		tracked:  make(map[string]*trackedMarker),
		logger:   o.logger,
	}
}

// Sync reconciles the tracked markers with roster and applies the selection
// highlight for selectedID (empty for none).
func (s *MarkerSynchronizer) Sync(roster []VehiclePosition, selectedID string) SyncStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats SyncStats
	if s.closed || !usable(s.view) {
		return stats
	}

	// Last occurrence of a duplicated id wins.
	latest := make(map[string]int, len(roster))
	for i, v := range roster {
		if !v.plottable() {
			continue
		}
		latest[v.ID] = i
	}

	for id, tm := range s.tracked {
		if _, ok := latest[id]; ok {
			continue
		}
		s.release(id, tm)
		stats.Removed++
	}

	for i, v := range roster {
		if !v.plottable() {
			s.logger.Debug().Str("vehicle", v.ID).Msg("skipping vehicle without usable position")
			stats.Skipped++
			continue
		}
		if latest[v.ID] != i {
			continue
		}
		if tm, ok := s.tracked[v.ID]; ok && tm.marker.Attached() {
			if err := tm.marker.SetLngLat(*v.Position); err != nil {
				s.logger.Warn().Err(err).Str("vehicle", v.ID).Msg("marker move failed")
			}
			tm.vehicle = v
			stats.Moved++
			continue
		}
		// A handle that vanished underneath us is replaced.
		delete(s.tracked, v.ID)
		if !usable(s.view) {
			stats.Skipped++
			continue
		}
		id := v.ID
		m, err := s.view.AddMarker(*v.Position, func() { s.activate(id) })
		if err != nil {
			s.logger.Warn().Err(err).Str("vehicle", v.ID).Msg("marker create failed")
			stats.Skipped++
			continue
		}
		s.tracked[v.ID] = &trackedMarker{marker: m, vehicle: v}
		stats.Created++
	}

	s.applySelection(selectedID)
	return stats
}

// Select runs the selection pass alone.
func (s *MarkerSynchronizer) Select(selectedID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !usable(s.view) {
		return
	}
	s.applySelection(selectedID)
}

// applySelection sets every marker's highlight. The view is only touched
// for markers whose state changes; a new marker starts unselected.
func (s *MarkerSynchronizer) applySelection(selectedID string) {
	for id, tm := range s.tracked {
		want := selectedID != "" && id == selectedID
		if tm.selected == want || !tm.marker.Attached() {
			continue
		}
		if err := tm.marker.SetSelected(want); err != nil {
			s.logger.Warn().Err(err).Str("vehicle", id).Msg("marker highlight failed")
			continue
		}
		tm.selected = want
	}
}

// Close releases every tracked marker. It is safe to call more than once.
func (s *MarkerSynchronizer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, tm := range s.tracked {
		s.release(id, tm)
	}
	s.closed = true
}

// Len returns the number of tracked markers.
func (s *MarkerSynchronizer) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracked)
}

// Marker returns the handle tracked for id.
func (s *MarkerSynchronizer) Marker(id string) (Marker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm, ok := s.tracked[id]
	if !ok {
		return nil, false
	}
	return tm.marker, true
}

// Vehicle returns the latest record stored for id.
func (s *MarkerSynchronizer) Vehicle(id string) (VehiclePosition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tm, ok := s.tracked[id]
	if !ok {
		return VehiclePosition{}, false
	}
	return tm.vehicle, true
}

func (s *MarkerSynchronizer) release(id string, tm *trackedMarker) {
	delete(s.tracked, id)
	if !tm.marker.Attached() {
		return
	}
	if err := tm.marker.Remove(); err != nil {
		s.logger.Debug().Err(err).Str("vehicle", id).Msg("marker already gone")
	}
}

// activate is the click path. The callback runs without s.mu held so it may
// call back into the synchronizer.
func (s *MarkerSynchronizer) activate(id string) {
	s.mu.Lock()
	tm, ok := s.tracked[id]
	closed := s.closed
	var v VehiclePosition
	if ok {
		v = tm.vehicle
	}
	s.mu.Unlock()

	if closed || !ok || s.onSelect == nil {
		return
	}
	s.onSelect(v)
}
