package main

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
)

type SiriJsonVehicleFeedSource struct {
	url        string
	httpClient *http.Client
}

func NewSiriJsonVehicleFeedSource(url string, timeout time.Duration) *SiriJsonVehicleFeedSource {
	return &SiriJsonVehicleFeedSource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *SiriJsonVehicleFeedSource) Fetch(ctx context.Context) ([]Vehicle, error) {
	b, err := fetchBody(ctx, s.httpClient, s.url, "siri json")
	if err != nil {
		return nil, err
	}
	return parseSiriJSON(b)
}

// parseSiriJSON walks Siri?.ServiceDelivery.VehicleMonitoringDelivery[].VehicleActivity[].
func parseSiriJSON(b []byte) ([]Vehicle, error) {
	var root map[string]any
	if err := json.Unmarshal(b, &root); err != nil {
		return nil, fmt.Errorf("siri json decode: %w", err)
	}
	// Handle optional top-level "Siri" wrapper
	if siri, ok := root["Siri"].(map[string]any); ok && siri != nil {
		root = siri
	}
	sd, _ := root["ServiceDelivery"].(map[string]any)
	vmdArr, _ := sd["VehicleMonitoringDelivery"].([]any)
	vehicles := make([]Vehicle, 0, 256)
	for _, vmdAny := range vmdArr {
		vmd, _ := vmdAny.(map[string]any)
		vaArr, _ := vmd["VehicleActivity"].([]any)
		for _, vaAny := range vaArr {
			va, _ := vaAny.(map[string]any)
			mvj, _ := va["MonitoredVehicleJourney"].(map[string]any)
			if mvj == nil {
				continue
			}
			id := textFrom(mvj["VehicleRef"])
			if id == "" {
				id = stringFromNested(mvj, "FramedVehicleJourneyRef", "DatedVehicleJourneyRef")
			}
			lat, lon := floatFromNested(mvj, "VehicleLocation", "Latitude"), floatFromNested(mvj, "VehicleLocation", "Longitude")
			if id == "" || (lat == 0 && lon == 0) {
				continue
			}
			v := Vehicle{
				ID:          id,
				Lat:         lat,
				Lon:         lon,
				RouteNumber: textFrom(mvj["LineRef"]),
				RouteName:   textFrom(mvj["PublishedLineName"]),
			}
			if speed, ok := floatFrom(mvj["Velocity"]); ok {
				v.Speed = float64Ptr(speed)
			}
			vehicles = append(vehicles, v)
		}
	}
	return vehicles, nil
}

// textFrom accepts the plain string form and the {"value": ...} and
// [{"value": ...}] forms SIRI JSON producers use for text elements.
func textFrom(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		return textFrom(t["value"])
	case []any:
		if len(t) > 0 {
			return textFrom(t[0])
		}
	}
	return ""
}

func stringFromNested(m map[string]any, k1, k2 string) string {
	m1, _ := m[k1].(map[string]any)
	return textFrom(m1[k2])
}

func floatFrom(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func floatFromNested(m map[string]any, k1, k2 string) float64 {
	m1, _ := m[k1].(map[string]any)
	f, _ := floatFrom(m1[k2])
	return f
}
