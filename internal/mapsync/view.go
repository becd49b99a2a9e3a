// Package mapsync keeps a map view consistent with a live fleet roster.
//
// Two synchronizers share a MapView: MarkerSynchronizer owns one marker per
// vehicle id and RouteLayerSynchronizer owns the source/layer pair of a single
// route line. Both are created once per map view lifetime and retired with
// Close, which releases everything they own before returning.
package mapsync

import (
	"math"

	geom "github.com/peterstace/simplefeatures/geom"
)

// LngLat is a WGS84 coordinate in map order.
type LngLat struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Valid reports whether the coordinate can be plotted.
func (p LngLat) Valid() bool {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) || math.IsInf(p.Lon, 0) || math.IsInf(p.Lat, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// VehiclePosition is one feed record for one vehicle.
type VehiclePosition struct {
	ID          string   `json:"id"`
	Position    *LngLat  `json:"position,omitempty"`
	RouteNumber string   `json:"routeNumber,omitempty"`
	RouteName   string   `json:"routeName,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
}

func (v VehiclePosition) plottable() bool {
	return v.ID != "" && v.Position != nil && v.Position.Valid()
}

// LineStyle describes how a route line is painted.
type LineStyle struct {
	Color   string  `json:"color"`
	Width   float64 `json:"width"`
	Opacity float64 `json:"opacity"`
	Join    string  `json:"join"`
	Cap     string  `json:"cap"`
}

// Marker is an on-screen handle for one vehicle. Attached is false once the
// marker has been removed, by us or by the view going away.
type Marker interface {
	Attached() bool
	SetLngLat(at LngLat) error
	SetSelected(selected bool) error
	Remove() error
}

// MapView is the rendering surface both synchronizers draw on. It outlives
// any single synchronizer.
type MapView interface {
	Disposed() bool

	AddMarker(at LngLat, onActivate func()) (Marker, error)

	AddSource(id string, path geom.LineString) error
	SetSourceData(id string, path geom.LineString) error
	HasSource(id string) bool
	RemoveSource(id string) error

	AddLineLayer(id, source string, style LineStyle) error
	HasLayer(id string) bool
	RemoveLayer(id string) error
}

func usable(view MapView) bool {
	return view != nil && !view.Disposed()
}

// LineString builds the geometry handed to the map view for a path.
func LineString(coords []LngLat) geom.LineString {
	flat := make([]float64, 0, len(coords)*2)
	for _, c := range coords {
		flat = append(flat, c.Lon, c.Lat)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
}
