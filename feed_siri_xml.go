package main

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

type SiriXmlVehicleFeedSource struct {
	url        string
	httpClient *http.Client
}

func NewSiriXmlVehicleFeedSource(url string, timeout time.Duration) *SiriXmlVehicleFeedSource {
	return &SiriXmlVehicleFeedSource{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (s *SiriXmlVehicleFeedSource) Fetch(ctx context.Context) ([]Vehicle, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("siri xml http status: %d", resp.StatusCode)
	}
	return parseSiriXML(resp.Body)
}

// Minimal streaming extraction for SIRI VM XML (namespace tolerant via Name.Local)
func parseSiriXML(r io.Reader) ([]Vehicle, error) {
	dec := xml.NewDecoder(r)

	var (
		inSiri, inSD, inVMD, inVA, inMVJ, inVL bool
		cur                                    siriActivity
		vehicles                               []Vehicle
	)

	text := func(se *xml.StartElement) string {
		var v string
		if err := dec.DecodeElement(&v, se); err != nil {
			return ""
		}
		return v
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("siri xml decode: %w", err)
		}
		switch se := tok.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "Siri":
				inSiri = true
			case "ServiceDelivery":
				if inSiri {
					inSD = true
				}
			case "VehicleMonitoringDelivery":
				if inSD {
					inVMD = true
				}
			case "VehicleActivity":
				if inVMD {
					inVA = true
					cur = siriActivity{}
				}
			case "MonitoredVehicleJourney":
				if inVA {
					inMVJ = true
				}
			case "VehicleLocation":
				if inMVJ || inVA {
					inVL = true
				}
			case "VehicleRef":
				if inMVJ || inVA {
					cur.id = text(&se)
				}
			case "LineRef":
				if inMVJ {
					cur.line = text(&se)
				}
			case "PublishedLineName":
				if inMVJ {
					cur.lineName = text(&se)
				}
			case "Velocity":
				if inMVJ {
					cur.speed = text(&se)
				}
			case "Latitude":
				if inVL {
					cur.lat = text(&se)
				}
			case "Longitude":
				if inVL {
					cur.lon = text(&se)
				}
			}
		case xml.EndElement:
			switch se.Name.Local {
			case "VehicleLocation":
				inVL = false
			case "MonitoredVehicleJourney":
				inMVJ = false
			case "VehicleActivity":
				if inVA {
					inVA = false
					if v, ok := cur.vehicle(); ok {
						vehicles = append(vehicles, v)
					}
				}
			case "VehicleMonitoringDelivery":
				inVMD = false
			case "ServiceDelivery":
				inSD = false
			case "Siri":
				inSiri = false
			}
		}
	}
	return vehicles, nil
}

type siriActivity struct {
	id, lat, lon   string
	line, lineName string
	speed          string
}

func (a siriActivity) vehicle() (Vehicle, bool) {
	if a.id == "" || a.lat == "" || a.lon == "" {
		return Vehicle{}, false
	}
	latf, lonf, ok := parseLatLon(a.lat, a.lon)
	if !ok {
		return Vehicle{}, false
	}
	v := Vehicle{ID: a.id, Lat: latf, Lon: lonf, RouteNumber: a.line, RouteName: a.lineName}
	if s, err := strconv.ParseFloat(a.speed, 64); err == nil {
		v.Speed = float64Ptr(s)
	}
	return v, true
}

func parseLatLon(lat, lon string) (float64, float64, bool) {
	lf, err1 := strconv.ParseFloat(lat, 64)
	if err1 != nil {
		return 0, 0, false
	}
	lo, err2 := strconv.ParseFloat(lon, 64)
	if err2 != nil {
		return 0, 0, false
	}
	return lf, lo, true
}
