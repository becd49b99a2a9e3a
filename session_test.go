package main

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-bus-tracker/internal/mapsync"
	"campus-bus-tracker/internal/mapview"
)

type commandLog struct {
	mu   sync.Mutex
	cmds []mapview.Command
}

func (l *commandLog) sink(c mapview.Command) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cmds = append(l.cmds, c)
	return nil
}

func (l *commandLog) ops() []mapview.Op {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]mapview.Op, 0, len(l.cmds))
	for _, c := range l.cmds {
		out = append(out, c.Op)
	}
	return out
}

func (l *commandLog) reset() {
	l.mu.Lock()
	l.cmds = nil
	l.mu.Unlock()
}

// markerID returns the handle id the view assigned to the n-th marker.add.
func (l *commandLog) markerID(n int) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.cmds {
		if c.Op == mapview.OpMarkerAdd {
			if n == 0 {
				return c.ID
			}
			n--
		}
	}
	return ""
}

func testRoutes() routeCatalog {
	return routeCatalog{
		"1": {ID: "1", Name: "North Loop", Coordinates: []mapsync.LngLat{{Lon: 77.1, Lat: 28.7}, {Lon: 77.2, Lat: 28.7}}},
		"2": {ID: "2", Name: "Hostel Shuttle", Coordinates: []mapsync.LngLat{{Lon: 77.1, Lat: 28.7}, {Lon: 77.0, Lat: 28.6}}},
	}
}

func TestSession_UpdateCreatesMovesAndRemovesMarkers(t *testing.T) {
	log := &commandLog{}
	s := newSession(log.sink, testRoutes())
	defer s.close()

	s.update([]Vehicle{{ID: "A", Lon: 77.1, Lat: 28.7}})
	s.update([]Vehicle{{ID: "A", Lon: 77.2, Lat: 28.7}, {ID: "B", Lon: 77.3, Lat: 28.8}})
	s.update([]Vehicle{{ID: "B", Lon: 77.3, Lat: 28.8}})

	assert.Equal(t, []mapview.Op{
		mapview.OpMarkerAdd,
		mapview.OpMarkerMove, mapview.OpMarkerAdd,
		mapview.OpMarkerRemove, mapview.OpMarkerMove,
	}, log.ops())
	assert.Equal(t, 1, s.view.MarkerCount())
}

func TestSession_ActivationSelectsAndDrawsRoute(t *testing.T) {
	log := &commandLog{}
	s := newSession(log.sink, testRoutes())
	defer s.close()

	s.update([]Vehicle{
		{ID: "A", Lon: 77.1, Lat: 28.7, RouteNumber: "1"},
		{ID: "B", Lon: 77.3, Lat: 28.8, RouteNumber: "2"},
	})
	idA, idB := log.markerID(0), log.markerID(1)
	log.reset()

	require.True(t, s.activate(idA))
	assert.Equal(t, "A", s.selectedID())
	assert.Equal(t, []mapview.Op{mapview.OpMarkerSelect, mapview.OpSourceAdd, mapview.OpLayerAdd}, log.ops())
	assert.True(t, s.view.HasLayer(mapsync.LayerID("1")))

	// Roster refresh moves the bus and updates the route in place.
	log.reset()
	s.update([]Vehicle{
		{ID: "A", Lon: 77.15, Lat: 28.7, RouteNumber: "1"},
		{ID: "B", Lon: 77.3, Lat: 28.8, RouteNumber: "2"},
	})
	assert.Equal(t, []mapview.Op{mapview.OpMarkerMove, mapview.OpMarkerMove, mapview.OpSourceSetData}, log.ops())

	// Selecting another bus swaps the route: old layer, old source, then the new pair.
	log.reset()
	require.True(t, s.activate(idB))
	assert.Equal(t, "B", s.selectedID())
	ops := log.ops()
	require.Len(t, ops, 6)
	assert.ElementsMatch(t, []mapview.Op{mapview.OpMarkerSelect, mapview.OpMarkerSelect}, ops[:2])
	assert.Equal(t, []mapview.Op{mapview.OpLayerRemove, mapview.OpSourceRemove, mapview.OpSourceAdd, mapview.OpLayerAdd}, ops[2:])
	assert.False(t, s.view.HasSource(mapsync.SourceID("1")))
	assert.True(t, s.view.HasSource(mapsync.SourceID("2")))

	log.reset()
	s.clearSelection()
	assert.Equal(t, "", s.selectedID())
	assert.Equal(t, []mapview.Op{mapview.OpMarkerSelect, mapview.OpLayerRemove, mapview.OpSourceRemove}, log.ops())
}

func TestSession_SelectedVehicleLeavingFeedIsDeselected(t *testing.T) {
	log := &commandLog{}
	s := newSession(log.sink, testRoutes())
	defer s.close()

	s.update([]Vehicle{{ID: "A", Lon: 77.1, Lat: 28.7, RouteNumber: "1"}, {ID: "B", Lon: 77.3, Lat: 28.8}})
	require.True(t, s.activate(log.markerID(0)))
	require.True(t, s.view.HasLayer(mapsync.LayerID("1")))

	s.update([]Vehicle{{ID: "B", Lon: 77.3, Lat: 28.8}})

	assert.Equal(t, "", s.selectedID())
	assert.False(t, s.view.HasLayer(mapsync.LayerID("1")))
	assert.False(t, s.view.HasSource(mapsync.SourceID("1")))
}

func TestSession_UnknownRouteDrawsNothing(t *testing.T) {
	log := &commandLog{}
	s := newSession(log.sink, testRoutes())
	defer s.close()

	s.update([]Vehicle{{ID: "A", Lon: 77.1, Lat: 28.7, RouteNumber: "99"}})
	id := log.markerID(0)
	log.reset()

	require.True(t, s.activate(id))
	assert.Equal(t, "A", s.selectedID())
	assert.Equal(t, []mapview.Op{mapview.OpMarkerSelect}, log.ops())
}

func TestSession_CloseReleasesAndIsIdempotent(t *testing.T) {
	log := &commandLog{}
	s := newSession(log.sink, testRoutes())

	s.update([]Vehicle{{ID: "A", Lon: 77.1, Lat: 28.7, RouteNumber: "1"}, {ID: "B", Lon: 77.3, Lat: 28.8}})
	require.True(t, s.activate(log.markerID(0)))
	log.reset()

	s.close()
	ops := log.ops()
	assert.ElementsMatch(t, []mapview.Op{
		mapview.OpMarkerRemove, mapview.OpMarkerRemove,
		mapview.OpLayerRemove, mapview.OpSourceRemove,
	}, ops)
	assert.True(t, s.view.Disposed())

	log.reset()
	s.close()
	s.update([]Vehicle{{ID: "C", Lon: 1, Lat: 1}})
	s.clearSelection()
	assert.Empty(t, log.ops())
}
