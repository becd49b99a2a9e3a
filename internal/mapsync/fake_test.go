package mapsync

import (
	"errors"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
)

var errGone = errors.New("gone")

type fakeMarker struct {
	view     *fakeView
	id       int
	at       LngLat
	selected bool
	attached bool
	onClick  func()
}

func (m *fakeMarker) Attached() bool { return m.attached && !m.view.disposed }

func (m *fakeMarker) SetLngLat(at LngLat) error {
	m.view.log("move %d", m.id)
	m.at = at
	return nil
}

func (m *fakeMarker) SetSelected(selected bool) error {
	m.view.log("select %d %t", m.id, selected)
	m.selected = selected
	return nil
}

func (m *fakeMarker) Remove() error {
	if !m.attached {
		return errGone
	}
	m.view.log("remove %d", m.id)
	m.attached = false
	return nil
}

type fakeView struct {
	disposed bool
	nextID   int
	markers  []*fakeMarker
	sources  map[string]geom.LineString
	layers   map[string]LineStyle
	ops      []string
	failAdd  bool
}

func newFakeView() *fakeView {
	return &fakeView{
		sources: make(map[string]geom.LineString),
		layers:  make(map[string]LineStyle),
	}
}

func (v *fakeView) log(format string, args ...any) {
	v.ops = append(v.ops, fmt.Sprintf(format, args...))
}

func (v *fakeView) Disposed() bool { return v.disposed }

func (v *fakeView) AddMarker(at LngLat, onActivate func()) (Marker, error) {
	if v.failAdd {
		return nil, errors.New("add refused")
	}
	v.nextID++
	m := &fakeMarker{view: v, id: v.nextID, at: at, attached: true, onClick: onActivate}
	v.markers = append(v.markers, m)
	v.log("add %d", m.id)
	return m, nil
}

func (v *fakeView) AddSource(id string, path geom.LineString) error {
	v.log("addSource %s", id)
	v.sources[id] = path
	return nil
}

func (v *fakeView) SetSourceData(id string, path geom.LineString) error {
	if _, ok := v.sources[id]; !ok {
		return errGone
	}
	v.log("setData %s", id)
	v.sources[id] = path
	return nil
}

func (v *fakeView) HasSource(id string) bool {
	_, ok := v.sources[id]
	return ok
}

func (v *fakeView) RemoveSource(id string) error {
	if _, ok := v.sources[id]; !ok {
		return errGone
	}
	v.log("removeSource %s", id)
	delete(v.sources, id)
	return nil
}

func (v *fakeView) AddLineLayer(id, source string, style LineStyle) error {
	v.log("addLayer %s", id)
	v.layers[id] = style
	return nil
}

func (v *fakeView) HasLayer(id string) bool {
	_, ok := v.layers[id]
	return ok
}

func (v *fakeView) RemoveLayer(id string) error {
	if _, ok := v.layers[id]; !ok {
		return errGone
	}
	v.log("removeLayer %s", id)
	delete(v.layers, id)
	return nil
}

// live returns the attached markers.
func (v *fakeView) live() []*fakeMarker {
	var out []*fakeMarker
	for _, m := range v.markers {
		if m.attached {
			out = append(out, m)
		}
	}
	return out
}

func at(lon, lat float64) *LngLat { return &LngLat{Lon: lon, Lat: lat} }
