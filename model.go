package main

import "campus-bus-tracker/internal/mapsync"

// Vehicle is the normalized feed record shared by every feed source.
type Vehicle struct {
	ID          string   `json:"id"`
	Lat         float64  `json:"lat"`
	Lon         float64  `json:"lon"`
	RouteNumber string   `json:"routeNumber,omitempty"`
	RouteName   string   `json:"routeName,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	LastUpdate  int64    `json:"lastUpdate"`
}

// Position converts the record for the map synchronizers.
func (v Vehicle) Position() mapsync.VehiclePosition {
	return mapsync.VehiclePosition{
		ID:          v.ID,
		Position:    &mapsync.LngLat{Lon: v.Lon, Lat: v.Lat},
		RouteNumber: v.RouteNumber,
		RouteName:   v.RouteName,
		Speed:       v.Speed,
	}
}

func positions(vehicles []Vehicle) []mapsync.VehiclePosition {
	out := make([]mapsync.VehiclePosition, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, v.Position())
	}
	return out
}

func float64Ptr(f float64) *float64 { return &f }
