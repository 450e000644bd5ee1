// Package config loads the detector's JSON configuration. All fields are
// pointers so that a partial file only overrides what it names; the Get*
// accessors supply the production defaults for everything else.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Station is one water-level measurement location.
type Station struct {
	Code string  `json:"code"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Config is the root configuration document.
type Config struct {
	// Stream params
	AISURL        *string          `json:"ais_url,omitempty"`
	BoundingBoxes [][2][2]float64  `json:"bounding_boxes,omitempty"`
	ReconnectBase *string          `json:"reconnect_base,omitempty"` // duration string like "1s"
	ReconnectMax  *string          `json:"reconnect_max,omitempty"`  // duration string like "60s"
	ReconnectJitter *float64       `json:"reconnect_jitter,omitempty"`

	// Detection params
	EncounterDistanceNM *float64 `json:"encounter_distance_nm,omitempty"`
	ReleaseDistanceNM   *float64 `json:"release_distance_nm,omitempty"`
	MinSpeedKn          *float64 `json:"min_speed_kn,omitempty"`
	VesselTimeout       *string  `json:"vessel_timeout,omitempty"` // duration string like "300s"
	HeadOnMinDeg        *float64 `json:"head_on_min_deg,omitempty"`
	OvertakingMaxDeg    *float64 `json:"overtaking_max_deg,omitempty"`

	// Write buffering params
	BatchSize          *int    `json:"batch_size,omitempty"`
	BatchFlushInterval *string `json:"batch_flush_interval,omitempty"`

	// Reporting params
	StatsInterval     *string   `json:"stats_interval,omitempty"`
	WaterPollInterval *string   `json:"water_poll_interval,omitempty"`
	Stations          []Station `json:"stations,omitempty"`
}

// Default detection area: the approaches to the Port of Rotterdam.
var defaultBoundingBoxes = [][2][2]float64{
	{{51.85, 3.60}, {52.10, 4.40}},
}

var defaultStations = []Station{
	{Code: "HOEKVHLD", Name: "Hoek van Holland", Lat: 51.9775, Lon: 4.1200},
	{Code: "IJMDBTHVN", Name: "IJmuiden Buitenhaven", Lat: 52.4650, Lon: 4.5550},
	{Code: "VLISSGN", Name: "Vlissingen", Lat: 51.4425, Lon: 3.5961},
}

// Empty returns a Config with all fields unset, so every accessor answers
// with its default.
func Empty() *Config {
	return &Config{}
}

// Load reads and validates a Config from a JSON file. Fields omitted from
// the file keep their defaults, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are usable.
func (c *Config) Validate() error {
	if c.EncounterDistanceNM != nil && *c.EncounterDistanceNM <= 0 {
		return fmt.Errorf("encounter_distance_nm must be positive, got %f", *c.EncounterDistanceNM)
	}
	if c.ReleaseDistanceNM != nil && *c.ReleaseDistanceNM <= 0 {
		return fmt.Errorf("release_distance_nm must be positive, got %f", *c.ReleaseDistanceNM)
	}
	if c.EncounterDistanceNM != nil && c.ReleaseDistanceNM != nil &&
		*c.ReleaseDistanceNM < *c.EncounterDistanceNM {
		return fmt.Errorf("release_distance_nm (%f) must not be below encounter_distance_nm (%f)",
			*c.ReleaseDistanceNM, *c.EncounterDistanceNM)
	}
	if c.MinSpeedKn != nil && *c.MinSpeedKn < 0 {
		return fmt.Errorf("min_speed_kn must be non-negative, got %f", *c.MinSpeedKn)
	}
	if c.ReconnectJitter != nil && (*c.ReconnectJitter < 0 || *c.ReconnectJitter > 1) {
		return fmt.Errorf("reconnect_jitter must be between 0 and 1, got %f", *c.ReconnectJitter)
	}
	if c.BatchSize != nil && *c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", *c.BatchSize)
	}

	durations := map[string]*string{
		"vessel_timeout":       c.VesselTimeout,
		"batch_flush_interval": c.BatchFlushInterval,
		"stats_interval":       c.StatsInterval,
		"water_poll_interval":  c.WaterPollInterval,
		"reconnect_base":       c.ReconnectBase,
		"reconnect_max":        c.ReconnectMax,
	}
	for field, val := range durations {
		if val != nil && *val != "" {
			if _, err := time.ParseDuration(*val); err != nil {
				return fmt.Errorf("invalid %s '%s': %w", field, *val, err)
			}
		}
	}

	for i, box := range c.BoundingBoxes {
		if box[0][0] >= box[1][0] || box[0][1] >= box[1][1] {
			return fmt.Errorf("bounding_boxes[%d]: corners must be [southwest, northeast]", i)
		}
	}

	for i, st := range c.Stations {
		if st.Code == "" {
			return fmt.Errorf("stations[%d]: code is required", i)
		}
	}

	return nil
}

func (c *Config) duration(val *string, def time.Duration) time.Duration {
	if val == nil || *val == "" {
		return def
	}
	d, err := time.ParseDuration(*val)
	if err != nil {
		return def
	}
	return d
}

// GetAISURL returns the stream endpoint or the default.
func (c *Config) GetAISURL() string {
	if c.AISURL == nil || *c.AISURL == "" {
		return "wss://stream.aisstream.io/v0/stream"
	}
	return *c.AISURL
}

// GetBoundingBoxes returns the subscription area or the default.
func (c *Config) GetBoundingBoxes() [][2][2]float64 {
	if len(c.BoundingBoxes) == 0 {
		return defaultBoundingBoxes
	}
	return c.BoundingBoxes
}

// GetReconnectBase returns the reconnect_base value or the default.
func (c *Config) GetReconnectBase() time.Duration {
	return c.duration(c.ReconnectBase, time.Second)
}

// GetReconnectMax returns the reconnect_max value or the default.
func (c *Config) GetReconnectMax() time.Duration {
	return c.duration(c.ReconnectMax, 60*time.Second)
}

// GetReconnectJitter returns the reconnect_jitter value or the default.
func (c *Config) GetReconnectJitter() float64 {
	if c.ReconnectJitter == nil {
		return 0.3
	}
	return *c.ReconnectJitter
}

// GetEncounterDistanceNM returns the encounter_distance_nm value or the default.
func (c *Config) GetEncounterDistanceNM() float64 {
	if c.EncounterDistanceNM == nil {
		return 3.0
	}
	return *c.EncounterDistanceNM
}

// GetReleaseDistanceNM returns the release_distance_nm value or the default.
func (c *Config) GetReleaseDistanceNM() float64 {
	if c.ReleaseDistanceNM == nil {
		return 5.0
	}
	return *c.ReleaseDistanceNM
}

// GetMinSpeedKn returns the min_speed_kn value or the default.
func (c *Config) GetMinSpeedKn() float64 {
	if c.MinSpeedKn == nil {
		return 0.5
	}
	return *c.MinSpeedKn
}

// GetVesselTimeout returns the vessel_timeout value or the default.
func (c *Config) GetVesselTimeout() time.Duration {
	return c.duration(c.VesselTimeout, 300*time.Second)
}

// GetHeadOnMinDeg returns the head_on_min_deg value or the default.
func (c *Config) GetHeadOnMinDeg() float64 {
	if c.HeadOnMinDeg == nil {
		return 165.0
	}
	return *c.HeadOnMinDeg
}

// GetOvertakingMaxDeg returns the overtaking_max_deg value or the default.
func (c *Config) GetOvertakingMaxDeg() float64 {
	if c.OvertakingMaxDeg == nil {
		return 30.0
	}
	return *c.OvertakingMaxDeg
}

// GetBatchSize returns the batch_size value or the default.
func (c *Config) GetBatchSize() int {
	if c.BatchSize == nil {
		return 100
	}
	return *c.BatchSize
}

// GetBatchFlushInterval returns the batch_flush_interval value or the default.
func (c *Config) GetBatchFlushInterval() time.Duration {
	return c.duration(c.BatchFlushInterval, 5*time.Second)
}

// GetStatsInterval returns the stats_interval value or the default.
func (c *Config) GetStatsInterval() time.Duration {
	return c.duration(c.StatsInterval, 30*time.Second)
}

// GetWaterPollInterval returns the water_poll_interval value or the default.
func (c *Config) GetWaterPollInterval() time.Duration {
	return c.duration(c.WaterPollInterval, 10*time.Minute)
}

// GetStations returns the water-level stations or the default set.
func (c *Config) GetStations() []Station {
	if len(c.Stations) == 0 {
		return defaultStations
	}
	return c.Stations
}
