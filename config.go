package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"campus-bus-tracker/internal/mapsync"
)

type FeedConfig struct {
	GtfsRtURL     string        `mapstructure:"gtfsrt_url" validate:"omitempty,url"`
	SiriXmlURL    string        `mapstructure:"siri_xml_url" validate:"omitempty,url"`
	SiriJsonURL   string        `mapstructure:"siri_json_url" validate:"omitempty,url"`
	CampusJsonURL string        `mapstructure:"campus_json_url" validate:"omitempty,url"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`

	// Consecutive failures before the breaker opens, and how long it stays open.
	BreakerFailures uint32        `mapstructure:"breaker_failures" validate:"gt=0"`
	BreakerOpenFor  time.Duration `mapstructure:"breaker_open_for" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn warning error disabled off"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json console"`
}

type Config struct {
	Port            int           `mapstructure:"port" validate:"gt=0,lt=65536"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	RefreshMinSecs  int           `mapstructure:"refresh_min_secs" validate:"gt=0"`
	RoutesFile      string        `mapstructure:"routes_file"`
	StaticDir       string        `mapstructure:"static_dir" validate:"required"`
	Feed            FeedConfig    `mapstructure:"feed"`
	Log             LogConfig     `mapstructure:"log"`
}

var errFeedChoice = errors.New("provide exactly one of --gtfsrt_url, --siri_xml_url, --siri_json_url, --campus_json_url")

// flagKeys maps command-line flags (the historical names) onto config keys.
var flagKeys = map[string]string{
	"port":             "port",
	"shutdown_timeout": "shutdown_timeout",
	"refresh_min_secs": "refresh_min_secs",
	"routes_file":      "routes_file",
	"static_dir":       "static_dir",
	"gtfsrt_url":       "feed.gtfsrt_url",
	"siri_xml_url":     "feed.siri_xml_url",
	"siri_json_url":    "feed.siri_json_url",
	"campus_json_url":  "feed.campus_json_url",
	"log_level":        "log.level",
	"log_format":       "log.format",
}

// loadConfig resolves configuration from defaults, an optional config file,
// BUSTRACK_* environment variables and flags, in increasing precedence.
func loadConfig(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("bustracker", pflag.ContinueOnError)
	configFile := fs.String("config", "", "Config file (yaml, json or toml)")
	fs.Int("port", 8080, "HTTP port")
	fs.Duration("shutdown_timeout", 10*time.Second, "HTTP server shutdown timeout")
	fs.Int("refresh_min_secs", 10, "Minimum refresh interval in seconds")
	fs.String("routes_file", "", "YAML file with route geometries")
	fs.String("static_dir", "./static", "Directory served at /")
	fs.String("gtfsrt_url", "", "GTFS-RT vehicle positions URL (protobuf)")
	fs.String("siri_xml_url", "", "SIRI VehicleMonitoring XML URL")
	fs.String("siri_json_url", "", "SIRI VehicleMonitoring JSON URL")
	fs.String("campus_json_url", "", "Campus bus JSON URL")
	fs.String("log_level", "info", "Log level")
	fs.String("log_format", "json", "Log format: json or console")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetDefault("feed.timeout", 10*time.Second)
	v.SetDefault("feed.breaker_failures", 5)
	v.SetDefault("feed.breaker_open_for", 30*time.Second)
	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	v.SetEnvPrefix("BUSTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	count := 0
	for _, u := range []string{c.Feed.GtfsRtURL, c.Feed.SiriXmlURL, c.Feed.SiriJsonURL, c.Feed.CampusJsonURL} {
		if u != "" {
			count++
		}
	}
	if count != 1 {
		return errFeedChoice
	}
	return nil
}

// feedSource builds the configured feed, wrapped in a circuit breaker.
func (c *Config) feedSource() VehicleFeedSource {
	f := c.Feed
	var (
		name string
		src  VehicleFeedSource
	)
	switch {
	case f.GtfsRtURL != "":
		name, src = "gtfsrt", NewGtfsRtVehicleFeedSource(f.GtfsRtURL, f.Timeout)
	case f.SiriXmlURL != "":
		name, src = "siri_xml", NewSiriXmlVehicleFeedSource(f.SiriXmlURL, f.Timeout)
	case f.SiriJsonURL != "":
		name, src = "siri_json", NewSiriJsonVehicleFeedSource(f.SiriJsonURL, f.Timeout)
	default:
		name, src = "campus_json", NewCampusJsonVehicleFeedSource(f.CampusJsonURL, f.Timeout)
	}
	return newBreakerFeed(name, src, f.BreakerFailures, f.BreakerOpenFor)
}

// RouteDefinition is one entry of the routes file.
type RouteDefinition struct {
	ID          string       `yaml:"id" json:"id" validate:"required"`
	Name        string       `yaml:"name" json:"name,omitempty"`
	Color       string       `yaml:"color" json:"color,omitempty" validate:"omitempty,hexcolor"`
	Coordinates [][2]float64 `yaml:"coordinates" json:"coordinates" validate:"min=2"`
}

type routesFile struct {
	Routes []RouteDefinition `yaml:"routes" validate:"dive"`
}

// routeCatalog maps a route id (a vehicle's route number) to its path.
type routeCatalog map[string]mapsync.Route

func loadRoutes(path string) (routeCatalog, error) {
	catalog := routeCatalog{}
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read routes file: %w", err)
	}
	var rf routesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse routes file: %w", err)
	}
	if err := validator.New().Struct(rf); err != nil {
		return nil, fmt.Errorf("invalid routes file: %w", err)
	}
	for _, def := range rf.Routes {
		if _, dup := catalog[def.ID]; dup {
			return nil, fmt.Errorf("invalid routes file: duplicate route %q", def.ID)
		}
		route := mapsync.Route{ID: def.ID, Name: def.Name, Color: def.Color}
		for _, c := range def.Coordinates {
			p := mapsync.LngLat{Lon: c[0], Lat: c[1]}
			if !p.Valid() {
				return nil, fmt.Errorf("invalid routes file: route %q has coordinate %v out of range", def.ID, c)
			}
			route.Coordinates = append(route.Coordinates, p)
		}
		catalog[def.ID] = route
	}
	return catalog, nil
}

// lookup finds the route a vehicle is running.
func (c routeCatalog) lookup(v mapsync.VehiclePosition) (mapsync.Route, bool) {
	if r, ok := c[v.RouteNumber]; ok && v.RouteNumber != "" {
		return r, true
	}
	return mapsync.Route{}, false
}

// list returns the catalogue ordered by route id.
func (c routeCatalog) list() []mapsync.Route {
	out := make([]mapsync.Route, 0, len(c))
	for _, r := range c {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
