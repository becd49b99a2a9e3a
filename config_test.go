package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-bus-tracker/internal/mapsync"
)

func TestLoadConfig_FlagsAndDefaults(t *testing.T) {
	cfg, err := loadConfig([]string{"--gtfsrt_url", "http://feeds.example/vp.pb", "--port", "9090"})
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 10, cfg.RefreshMinSecs)
	assert.Equal(t, "./static", cfg.StaticDir)
	assert.Equal(t, "http://feeds.example/vp.pb", cfg.Feed.GtfsRtURL)
	assert.Equal(t, 10*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, uint32(5), cfg.Feed.BreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.Feed.BreakerOpenFor)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bustracker.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
port: 7070
refresh_min_secs: 5
feed:
  siri_json_url: http://feeds.example/vm.json
  timeout: 3s
  breaker_failures: 2
log:
  level: debug
  format: console
`), 0o644))

	cfg, err := loadConfig([]string{"--config", file})
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, 5, cfg.RefreshMinSecs)
	assert.Equal(t, "http://feeds.example/vm.json", cfg.Feed.SiriJsonURL)
	assert.Equal(t, 3*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, uint32(2), cfg.Feed.BreakerFailures)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("BUSTRACK_FEED_CAMPUS_JSON_URL", "http://campus.example/api/buses")
	t.Setenv("BUSTRACK_PORT", "8181")

	cfg, err := loadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, "http://campus.example/api/buses", cfg.Feed.CampusJsonURL)
	assert.Equal(t, 8181, cfg.Port)
}

func TestLoadConfig_FeedChoice(t *testing.T) {
	_, err := loadConfig(nil)
	assert.ErrorIs(t, err, errFeedChoice)

	_, err = loadConfig([]string{"--gtfsrt_url", "http://a.example/vp", "--siri_xml_url", "http://b.example/vm"})
	assert.ErrorIs(t, err, errFeedChoice)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := loadConfig([]string{"--gtfsrt_url", "not a url"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config")

	_, err = loadConfig([]string{"--gtfsrt_url", "http://a.example/vp", "--port", "0"})
	require.Error(t, err)

	_, err = loadConfig([]string{"--gtfsrt_url", "http://a.example/vp", "--log_level", "loud"})
	require.Error(t, err)

	_, err = loadConfig([]string{"--config", "/nonexistent/bustracker.yaml"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestConfig_FeedSourceIsGuarded(t *testing.T) {
	cfg, err := loadConfig([]string{"--siri_xml_url", "http://feeds.example/vm.xml"})
	require.NoError(t, err)

	src := cfg.feedSource()
	bf, ok := src.(*breakerFeed)
	require.True(t, ok)
	assert.IsType(t, &SiriXmlVehicleFeedSource{}, bf.feed)
	assert.Equal(t, gobreaker.StateClosed, bf.State())
}

func writeRoutes(t *testing.T, body string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "routes.yaml")
	require.NoError(t, os.WriteFile(file, []byte(body), 0o644))
	return file
}

func TestLoadRoutes(t *testing.T) {
	file := writeRoutes(t, `
routes:
  - id: "1"
    name: North Loop
    color: "#16a34a"
    coordinates:
      - [77.1, 28.7]
      - [77.11, 28.705]
  - id: "2"
    coordinates:
      - [77.1, 28.7]
      - [77.095, 28.69]
`)
	catalog, err := loadRoutes(file)
	require.NoError(t, err)
	require.Len(t, catalog, 2)

	r, ok := catalog.lookup(mapsync.VehiclePosition{ID: "bus", RouteNumber: "1"})
	require.True(t, ok)
	assert.Equal(t, "North Loop", r.Name)
	assert.Equal(t, "#16a34a", r.Color)
	assert.Equal(t, []mapsync.LngLat{{Lon: 77.1, Lat: 28.7}, {Lon: 77.11, Lat: 28.705}}, r.Coordinates)

	_, ok = catalog.lookup(mapsync.VehiclePosition{ID: "bus"})
	assert.False(t, ok)

	list := catalog.list()
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)
	assert.Equal(t, "2", list[1].ID)
}

func TestLoadRoutes_Empty(t *testing.T) {
	catalog, err := loadRoutes("")
	require.NoError(t, err)
	assert.Empty(t, catalog)
}

func TestLoadRoutes_Invalid(t *testing.T) {
	cases := map[string]string{
		"missing id":     "routes:\n  - coordinates: [[0, 0], [1, 1]]\n",
		"one point":      "routes:\n  - id: a\n    coordinates: [[0, 0]]\n",
		"bad color":      "routes:\n  - id: a\n    color: blue\n    coordinates: [[0, 0], [1, 1]]\n",
		"out of range":   "routes:\n  - id: a\n    coordinates: [[0, 0], [1, 91]]\n",
		"duplicate":      "routes:\n  - id: a\n    coordinates: [[0, 0], [1, 1]]\n  - id: a\n    coordinates: [[0, 0], [1, 1]]\n",
		"not yaml":       "routes: [\n",
		"three elements": "routes:\n  - id: a\n    coordinates: [[0, 0, 0], [1, 1]]\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := loadRoutes(writeRoutes(t, body))
			assert.Error(t, err)
		})
	}

	_, err := loadRoutes("/nonexistent/routes.yaml")
	assert.Error(t, err)
}
