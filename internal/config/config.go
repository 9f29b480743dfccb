package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections. One file is shared by the
// feeder, recorder, and export binaries; each reads the sections it needs.
type Config struct {
	Logging    LoggingConfig    `toml:"logging"`    // Application logging settings
	Source     SourceConfig     `toml:"source"`     // Raw ADS-B frame source settings (feeder)
	Tracker    TrackerConfig    `toml:"tracker"`    // Aircraft state aggregation settings (feeder)
	Station    StationConfig    `toml:"station"`    // Receiver location settings (feeder, optional)
	Publisher  PublisherConfig  `toml:"publisher"`  // WebSocket snapshot broadcast settings (feeder)
	Subscriber SubscriberConfig `toml:"subscriber"` // WebSocket feed subscription settings (recorder)
	Storage    StorageConfig    `toml:"storage"`    // SQLite persistence settings (recorder, export)
	API        APIConfig        `toml:"api"`        // Recorder HTTP API settings
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// SourceConfig contains the dump1090-style raw TCP feed settings
type SourceConfig struct {
	Host                  string `toml:"host"`                    // Hostname or IP of the raw feed (e.g. a dump1090 box)
	Port                  int    `toml:"port"`                    // Raw feed port (default 30002)
	ReconnectIntervalSecs int    `toml:"reconnect_interval_secs"` // Seconds to wait before redialing after a connection failure
	BufferSize            int    `toml:"buffer_size"`             // Frame channel capacity between the reader and the tracker
}

// ReconnectInterval returns the redial delay as a time.Duration.
func (c SourceConfig) ReconnectInterval() time.Duration {
	return time.Duration(c.ReconnectIntervalSecs) * time.Second
}

// TrackerConfig contains aircraft state aggregation settings
type TrackerConfig struct {
	CPRStaleSecs        int `toml:"cpr_stale_secs"`        // Maximum age difference between CPR parity frames before the older is discarded
	ResolveLogSecs      int `toml:"resolve_log_secs"`      // Minimum seconds between position-resolution log lines per aircraft
	AssemblyTimeoutSecs int `toml:"assembly_timeout_secs"` // Seconds before an aircraft without a full state set is counted incomplete
	StatsIntervalSecs   int `toml:"stats_interval_secs"`   // How often the tracker logs its quality counters
}

// CPRStale returns the parity-pair staleness window as a time.Duration.
func (c TrackerConfig) CPRStale() time.Duration {
	return time.Duration(c.CPRStaleSecs) * time.Second
}

// ResolveLogInterval returns the per-aircraft resolution log throttle window.
func (c TrackerConfig) ResolveLogInterval() time.Duration {
	return time.Duration(c.ResolveLogSecs) * time.Second
}

// AssemblyTimeout returns the state-assembly diagnostic timeout.
func (c TrackerConfig) AssemblyTimeout() time.Duration {
	return time.Duration(c.AssemblyTimeoutSecs) * time.Second
}

// StatsInterval returns the counter logging cadence.
func (c TrackerConfig) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalSecs) * time.Second
}

// StationConfig contains the receiver location. Both coordinates must be
// set together; when absent, aircraft distance annotation is disabled.
type StationConfig struct {
	Latitude  *float64 `toml:"latitude"`  // Receiver latitude in decimal degrees
	Longitude *float64 `toml:"longitude"` // Receiver longitude in decimal degrees
}

// Coordinates returns the station position and whether one is configured.
func (c StationConfig) Coordinates() (lat, lon float64, ok bool) {
	if c.Latitude == nil || c.Longitude == nil {
		return 0, 0, false
	}
	return *c.Latitude, *c.Longitude, true
}

// PublisherConfig contains the feeder's WebSocket broadcast settings
type PublisherConfig struct {
	BindAddr     string `toml:"bind_addr"`     // Address the feeder HTTP/WebSocket server listens on
	IntervalSecs int    `toml:"interval_secs"` // Seconds between snapshot broadcasts
}

// Interval returns the broadcast cadence as a time.Duration.
func (c PublisherConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSecs) * time.Second
}

// SubscriberConfig contains the recorder's feed subscription settings
type SubscriberConfig struct {
	URL                 string `toml:"url"`                   // WebSocket URL of the feeder (e.g. ws://localhost:8443/ws)
	BackoffBaseSecs     int    `toml:"backoff_base_secs"`     // Initial reconnect delay after a failed dial
	BackoffMaxSecs      int    `toml:"backoff_max_secs"`      // Reconnect delay ceiling
	PersistIntervalSecs int    `toml:"persist_interval_secs"` // Seconds between persistence passes over the mirrored snapshot
}

// BackoffBase returns the initial reconnect delay.
func (c SubscriberConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseSecs) * time.Second
}

// BackoffMax returns the reconnect delay ceiling.
func (c SubscriberConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxSecs) * time.Second
}

// PersistInterval returns the persistence cadence.
func (c SubscriberConfig) PersistInterval() time.Duration {
	return time.Duration(c.PersistIntervalSecs) * time.Second
}

// StorageConfig contains SQLite persistence settings
type StorageConfig struct {
	Path               string `toml:"path"`                 // SQLite database file path
	QueueSize          int    `toml:"queue_size"`           // Persistence task channel capacity
	SessionTimeoutSecs int    `toml:"session_timeout_secs"` // Seconds of path inactivity before a flight session is closed
	SweepIntervalSecs  int    `toml:"sweep_interval_secs"`  // How often the worker scans for inactive sessions
}

// SessionTimeout returns the session inactivity threshold.
func (c StorageConfig) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSecs) * time.Second
}

// SweepInterval returns the inactivity scan cadence.
func (c StorageConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}

// APIConfig contains the recorder's read-only HTTP API settings
type APIConfig struct {
	BindAddr string `toml:"bind_addr"` // Address the recorder HTTP server listens on
}

// DefaultConfig returns a configuration populated with every default value.
// Load decodes the TOML file over these, so omitted keys keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Source: SourceConfig{
			Port:                  30002,
			ReconnectIntervalSecs: 5,
			BufferSize:            1000,
		},
		Tracker: TrackerConfig{
			CPRStaleSecs:        10,
			ResolveLogSecs:      30,
			AssemblyTimeoutSecs: 120,
			StatsIntervalSecs:   60,
		},
		Publisher: PublisherConfig{
			BindAddr:     ":8443",
			IntervalSecs: 3,
		},
		Subscriber: SubscriberConfig{
			URL:                 "ws://localhost:8443/ws",
			BackoffBaseSecs:     5,
			BackoffMaxSecs:      60,
			PersistIntervalSecs: 10,
		},
		Storage: StorageConfig{
			Path:               "skybridge.db",
			QueueSize:          4096,
			SessionTimeoutSecs: 300,
			SweepIntervalSecs:  10,
		},
		API: APIConfig{
			BindAddr: ":8080",
		},
	}
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	config := DefaultConfig()

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file over the defaults
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,            // User-specified path (if provided)
		"skybridge.toml",         // Root directory
		"configs/skybridge.toml", // configs/ folder
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate logging config
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if err := c.ValidateSource(); err != nil {
		return err
	}

	if err := c.ValidateTracker(); err != nil {
		return err
	}

	if err := c.ValidateStation(); err != nil {
		return err
	}

	// Validate publisher config
	if c.Publisher.BindAddr == "" {
		return fmt.Errorf("publisher bind_addr is required")
	}
	if c.Publisher.IntervalSecs <= 0 {
		return fmt.Errorf("invalid publisher interval: %d", c.Publisher.IntervalSecs)
	}

	if err := c.ValidateSubscriber(); err != nil {
		return err
	}

	if err := c.ValidateStorage(); err != nil {
		return err
	}

	// Validate API config
	if c.API.BindAddr == "" {
		return fmt.Errorf("api bind_addr is required")
	}

	return nil
}

// ValidateSource validates the raw feed source configuration. Host may be
// empty here; the feeder checks for it at startup since the recorder and
// export binaries share this file without needing a source.
func (c *Config) ValidateSource() error {
	if c.Source.Port <= 0 || c.Source.Port > 65535 {
		return fmt.Errorf("invalid source port: %d", c.Source.Port)
	}
	if c.Source.ReconnectIntervalSecs <= 0 {
		return fmt.Errorf("invalid source reconnect interval: %d", c.Source.ReconnectIntervalSecs)
	}
	if c.Source.BufferSize <= 0 {
		return fmt.Errorf("invalid source buffer size: %d", c.Source.BufferSize)
	}
	return nil
}

// ValidateTracker validates the aggregation configuration
func (c *Config) ValidateTracker() error {
	if c.Tracker.CPRStaleSecs <= 0 {
		return fmt.Errorf("invalid cpr_stale_secs: %d", c.Tracker.CPRStaleSecs)
	}
	if c.Tracker.ResolveLogSecs <= 0 {
		return fmt.Errorf("invalid resolve_log_secs: %d", c.Tracker.ResolveLogSecs)
	}
	if c.Tracker.AssemblyTimeoutSecs <= 0 {
		return fmt.Errorf("invalid assembly_timeout_secs: %d", c.Tracker.AssemblyTimeoutSecs)
	}
	if c.Tracker.StatsIntervalSecs <= 0 {
		return fmt.Errorf("invalid stats_interval_secs: %d", c.Tracker.StatsIntervalSecs)
	}
	return nil
}

// ValidateStation validates the station configuration
func (c *Config) ValidateStation() error {
	// Both coordinates together or neither
	if (c.Station.Latitude == nil) != (c.Station.Longitude == nil) {
		return fmt.Errorf("station latitude and longitude must be set together")
	}

	if c.Station.Latitude != nil {
		if *c.Station.Latitude < -90 || *c.Station.Latitude > 90 {
			return fmt.Errorf("invalid station latitude: %f", *c.Station.Latitude)
		}
		if *c.Station.Longitude < -180 || *c.Station.Longitude > 180 {
			return fmt.Errorf("invalid station longitude: %f", *c.Station.Longitude)
		}
	}

	return nil
}

// ValidateSubscriber validates the feed subscription configuration
func (c *Config) ValidateSubscriber() error {
	if c.Subscriber.URL == "" {
		return fmt.Errorf("subscriber url is required")
	}
	if c.Subscriber.BackoffBaseSecs <= 0 {
		return fmt.Errorf("invalid backoff_base_secs: %d", c.Subscriber.BackoffBaseSecs)
	}
	if c.Subscriber.BackoffMaxSecs < c.Subscriber.BackoffBaseSecs {
		return fmt.Errorf("backoff_max_secs (%d) must be >= backoff_base_secs (%d)",
			c.Subscriber.BackoffMaxSecs, c.Subscriber.BackoffBaseSecs)
	}
	if c.Subscriber.PersistIntervalSecs <= 0 {
		return fmt.Errorf("invalid persist_interval_secs: %d", c.Subscriber.PersistIntervalSecs)
	}
	return nil
}

// ValidateStorage validates the persistence configuration
func (c *Config) ValidateStorage() error {
	if c.Storage.Path == "" {
		return fmt.Errorf("storage path is required")
	}
	if c.Storage.QueueSize <= 0 {
		return fmt.Errorf("invalid storage queue_size: %d", c.Storage.QueueSize)
	}
	if c.Storage.SessionTimeoutSecs <= 0 {
		return fmt.Errorf("invalid session_timeout_secs: %d", c.Storage.SessionTimeoutSecs)
	}
	if c.Storage.SweepIntervalSecs <= 0 {
		return fmt.Errorf("invalid sweep_interval_secs: %d", c.Storage.SweepIntervalSecs)
	}
	return nil
}
