package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

type VehicleFeedSource interface {
	Fetch(ctx context.Context) ([]Vehicle, error)
}

type GtfsRtVehicleFeedSource struct {
	url        string
	httpClient *http.Client
}

func NewGtfsRtVehicleFeedSource(url string, timeout time.Duration) *GtfsRtVehicleFeedSource {
	return &GtfsRtVehicleFeedSource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *GtfsRtVehicleFeedSource) Fetch(ctx context.Context) ([]Vehicle, error) {
	body, err := fetchBody(ctx, s.httpClient, s.url, "gtfs-rt")
	if err != nil {
		return nil, err
	}
	var feed gtfs.FeedMessage
	if err := proto.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("gtfs-rt decode: %w", err)
	}
	return vehiclesFromFeedMessage(&feed), nil
}

func vehiclesFromFeedMessage(feed *gtfs.FeedMessage) []Vehicle {
	vehicles := make([]Vehicle, 0, len(feed.GetEntity()))
	for _, ent := range feed.GetEntity() {
		vp := ent.GetVehicle()
		if vp == nil || vp.GetVehicle() == nil || vp.GetPosition() == nil {
			continue
		}
		id := vp.GetVehicle().GetId()
		if id == "" {
			continue
		}
		pos := vp.GetPosition()
		if pos.Latitude == nil || pos.Longitude == nil {
			continue
		}
		v := Vehicle{
			ID:          id,
			Lat:         float64(pos.GetLatitude()),
			Lon:         float64(pos.GetLongitude()),
			RouteNumber: vp.GetTrip().GetRouteId(),
		}
		if pos.Speed != nil {
			v.Speed = float64Ptr(float64(pos.GetSpeed()))
		}
		vehicles = append(vehicles, v)
	}
	return vehicles
}

// fetchBody GETs url and returns the body of a 200 response.
func fetchBody(ctx context.Context, client *http.Client, url, kind string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s http status: %d", kind, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
