package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

// CampusJsonVehicleFeedSource reads the dashboard REST shape: either a bare
// array of buses or {"buses": [...]}.
type CampusJsonVehicleFeedSource struct {
	url        string
	httpClient *http.Client
}

func NewCampusJsonVehicleFeedSource(url string, timeout time.Duration) *CampusJsonVehicleFeedSource {
	return &CampusJsonVehicleFeedSource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type campusBus struct {
	ID        string   `json:"id"`
	RouteNo   string   `json:"routeNumber"`
	RouteName string   `json:"routeName"`
	Speed     *float64 `json:"speed"`
	Location  *struct {
		Lat *float64 `json:"lat"`
		Lng *float64 `json:"lng"`
	} `json:"location"`
}

func (s *CampusJsonVehicleFeedSource) Fetch(ctx context.Context) ([]Vehicle, error) {
	b, err := fetchBody(ctx, s.httpClient, s.url, "campus json")
	if err != nil {
		return nil, err
	}
	return parseCampusJSON(b)
}

func parseCampusJSON(b []byte) ([]Vehicle, error) {
	var buses []campusBus
	if trimmed := bytes.TrimSpace(b); len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Buses []campusBus `json:"buses"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("campus json decode: %w", err)
		}
		buses = wrapped.Buses
	} else if err := json.Unmarshal(b, &buses); err != nil {
		return nil, fmt.Errorf("campus json decode: %w", err)
	}

	vehicles := make([]Vehicle, 0, len(buses))
	for _, bus := range buses {
		if bus.ID == "" || bus.Location == nil || bus.Location.Lat == nil || bus.Location.Lng == nil {
			continue
		}
		vehicles = append(vehicles, Vehicle{
			ID:          bus.ID,
			Lat:         *bus.Location.Lat,
			Lon:         *bus.Location.Lng,
			RouteNumber: bus.RouteNo,
			RouteName:   bus.RouteName,
			Speed:       bus.Speed,
		})
	}
	return vehicles, nil
}
