// Package mapview implements mapsync.MapView for a browser map on the far
// side of a websocket. Every mutation is recorded locally and sent to the
// client as a Command; marker clicks come back through Activate.
package mapview

import (
	"errors"
	"fmt"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	geom "github.com/peterstace/simplefeatures/geom"

	"campus-bus-tracker/internal/mapsync"
)

var (
	ErrDisposed      = errors.New("map view disposed")
	ErrUnknownMarker = errors.New("unknown marker")
	ErrUnknownSource = errors.New("unknown source")
	ErrUnknownLayer  = errors.New("unknown layer")
	ErrDuplicateID   = errors.New("id already in use")
	ErrSourceInUse   = errors.New("source still referenced by a layer")
)

// Op names a client-side map operation.
type Op string

const (
	OpMarkerAdd     Op = "marker.add"
	OpMarkerMove    Op = "marker.move"
	OpMarkerSelect  Op = "marker.select"
	OpMarkerRemove  Op = "marker.remove"
	OpSourceAdd     Op = "source.add"
	OpSourceSetData Op = "source.setData"
	OpSourceRemove  Op = "source.remove"
	OpLayerAdd      Op = "layer.add"
	OpLayerRemove   Op = "layer.remove"
)

// Command is one instruction for the client map.
type Command struct {
	Op       Op                 `json:"op"`
	ID       string             `json:"id"`
	LngLat   *[2]float64        `json:"lngLat,omitempty"`
	Selected *bool              `json:"selected,omitempty"`
	Source   string             `json:"source,omitempty"`
	Data     json.RawMessage    `json:"data,omitempty"`
	Style    *mapsync.LineStyle `json:"style,omitempty"`
}

// Sink delivers a command to the client.
type Sink func(Command) error

type marker struct {
	view     *Remote
	id       string
	onClick  func()
	attached bool
}

// Remote is the server-side mirror of one client map.
type Remote struct {
	mu       sync.Mutex
	sink     Sink
	disposed bool
	markers  map[string]*marker
	sources  map[string]struct{}
	layers   map[string]string // layer id -> source id
}

// NewRemote returns a view that sends its commands to sink.
func NewRemote(sink Sink) *Remote {
	return &Remote{
		sink:    sink,
		markers: make(map[string]*marker),
		sources: make(map[string]struct{}),
		layers:  make(map[string]string),
	}
}

func (r *Remote) send(cmd Command) error {
	if err := r.sink(cmd); err != nil {
		return fmt.Errorf("%s %s: %w", cmd.Op, cmd.ID, err)
	}
	return nil
}

func lngLat(p mapsync.LngLat) *[2]float64 {
	return &[2]float64{p.Lon, p.Lat}
}

// Disposed reports whether the client map has gone away.
func (r *Remote) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

// Dispose marks the client map gone. Nothing is sent afterwards.
func (r *Remote) Dispose() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disposed = true
	for _, m := range r.markers {
		m.attached = false
	}
	r.markers = make(map[string]*marker)
	r.sources = make(map[string]struct{})
	r.layers = make(map[string]string)
}

// AddMarker places a new marker on the client map.
func (r *Remote) AddMarker(at mapsync.LngLat, onActivate func()) (mapsync.Marker, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return nil, ErrDisposed
	}
	m := &marker{view: r, id: uuid.NewString(), onClick: onActivate, attached: true}
	if err := r.send(Command{Op: OpMarkerAdd, ID: m.id, LngLat: lngLat(at)}); err != nil {
		return nil, err
	}
	r.markers[m.id] = m
	return m, nil
}

// Activate runs the click handler of the marker with the given id. It
// reports false when no live marker matches.
func (r *Remote) Activate(markerID string) bool {
	r.mu.Lock()
	m, ok := r.markers[markerID]
	var fn func()
	if ok && m.attached && !r.disposed {
		fn = m.onClick
	}
	r.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

// MarkerCount returns the number of markers on the client map.
func (r *Remote) MarkerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.markers)
}

func (m *marker) Attached() bool {
	m.view.mu.Lock()
	defer m.view.mu.Unlock()
	return m.attached && !m.view.disposed
}

func (m *marker) SetLngLat(at mapsync.LngLat) error {
	r := m.view
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	return r.send(Command{Op: OpMarkerMove, ID: m.id, LngLat: lngLat(at)})
}

func (m *marker) SetSelected(selected bool) error {
	r := m.view
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	return r.send(Command{Op: OpMarkerSelect, ID: m.id, Selected: &selected})
}

// Remove drops the marker locally even if the client cannot be told.
func (m *marker) Remove() error {
	r := m.view
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.attached = false
	delete(r.markers, m.id)
	return r.send(Command{Op: OpMarkerRemove, ID: m.id})
}

// check must be called with the view lock held.
func (m *marker) check() error {
	if m.view.disposed {
		return ErrDisposed
	}
	if !m.attached {
		return ErrUnknownMarker
	}
	return nil
}

func geoJSON(path geom.LineString) (json.RawMessage, error) {
	b, err := path.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode route geometry: %w", err)
	}
	return b, nil
}

// AddSource registers a GeoJSON line source.
func (r *Remote) AddSource(id string, path geom.LineString) error {
	data, err := geoJSON(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrDisposed
	}
	if _, ok := r.sources[id]; ok {
		return fmt.Errorf("source %s: %w", id, ErrDuplicateID)
	}
	if err := r.send(Command{Op: OpSourceAdd, ID: id, Data: data}); err != nil {
		return err
	}
	r.sources[id] = struct{}{}
	return nil
}

// SetSourceData replaces the geometry of an existing source.
func (r *Remote) SetSourceData(id string, path geom.LineString) error {
	data, err := geoJSON(path)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrDisposed
	}
	if _, ok := r.sources[id]; !ok {
		return fmt.Errorf("source %s: %w", id, ErrUnknownSource)
	}
	return r.send(Command{Op: OpSourceSetData, ID: id, Data: data})
}

func (r *Remote) HasSource(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sources[id]
	return ok && !r.disposed
}

// RemoveSource drops a source. A layer must not outlive its source, so a
// source still referenced by a layer is refused.
func (r *Remote) RemoveSource(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrDisposed
	}
	if _, ok := r.sources[id]; !ok {
		return fmt.Errorf("source %s: %w", id, ErrUnknownSource)
	}
	for layer, src := range r.layers {
		if src == id {
			return fmt.Errorf("source %s used by %s: %w", id, layer, ErrSourceInUse)
		}
	}
	delete(r.sources, id)
	return r.send(Command{Op: OpSourceRemove, ID: id})
}

// AddLineLayer paints source as a line.
func (r *Remote) AddLineLayer(id, source string, style mapsync.LineStyle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrDisposed
	}
	if _, ok := r.layers[id]; ok {
		return fmt.Errorf("layer %s: %w", id, ErrDuplicateID)
	}
	if _, ok := r.sources[source]; !ok {
		return fmt.Errorf("layer %s source %s: %w", id, source, ErrUnknownSource)
	}
	if err := r.send(Command{Op: OpLayerAdd, ID: id, Source: source, Style: &style}); err != nil {
		return err
	}
	r.layers[id] = source
	return nil
}

func (r *Remote) HasLayer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.layers[id]
	return ok && !r.disposed
}

func (r *Remote) RemoveLayer(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return ErrDisposed
	}
	if _, ok := r.layers[id]; !ok {
		return fmt.Errorf("layer %s: %w", id, ErrUnknownLayer)
	}
	delete(r.layers, id)
	return r.send(Command{Op: OpLayerRemove, ID: id})
}

var _ mapsync.MapView = (*Remote)(nil)
