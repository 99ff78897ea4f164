// Package config loads the runtime configuration for the parking monitor.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/parking.report/internal/units"
)

// Defaults applied by the Get* accessors when a field is omitted.
const (
	DefaultSpacesPath       = "spaces.json"
	DefaultStatusPath       = "status.json"
	DefaultDBPath           = "parking.db"
	DefaultDetectorSource   = "stdin"
	DefaultCarClassID       = 2
	DefaultMinConfidence    = 0.25
	DefaultTimezone         = units.LocalTimezone
	DefaultSessionQueueSize = 256
	DefaultSessionRetries   = 3
	DefaultListen           = "localhost:8090"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root runtime configuration. Every field is optional; the
// Get* methods supply defaults so partial files are safe.
type Config struct {
	SpacesPath     *string `json:"spaces_path,omitempty"`
	StatusPath     *string `json:"status_path,omitempty"`
	DBPath         *string `json:"db_path,omitempty"`
	DetectorSource *string `json:"detector_source,omitempty"`

	// Classifier
	TargetClassIDs   []int    `json:"target_class_ids,omitempty"`
	TargetClassNames []string `json:"target_class_names,omitempty"`
	MinConfidence    *float64 `json:"min_confidence,omitempty"`

	// Sessions
	MinSessionDuration *string  `json:"min_session_duration,omitempty"` // duration string like "10s"
	RatePerMinute      *float64 `json:"rate_per_minute,omitempty"`
	Timezone           *string  `json:"timezone,omitempty"`
	AsyncSessions      *bool    `json:"async_sessions,omitempty"`
	SessionQueueSize   *int     `json:"session_queue_size,omitempty"`
	SessionMaxRetries  *int     `json:"session_max_retries,omitempty"`

	// Loop
	FrameInterval    *string `json:"frame_interval,omitempty"` // replay pacing, "" = as fast as possible
	DebounceWindow   *int    `json:"debounce_window,omitempty"`
	DebounceRequired *int    `json:"debounce_required,omitempty"`
	RestoreOccupancy *bool   `json:"restore_occupancy,omitempty"`

	Listen *string `json:"listen,omitempty"`
}

func ptrString(v string) *string    { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrInt(v int) *int             { return &v }
func ptrBool(v bool) *bool          { return &v }

// Load reads a Config from a JSON file. The path must have a .json
// extension and the file must be under 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	for _, d := range []struct {
		name string
		val  *string
	}{
		{"min_session_duration", c.MinSessionDuration},
		{"frame_interval", c.FrameInterval},
	} {
		if d.val == nil || *d.val == "" {
			continue
		}
		v, err := time.ParseDuration(*d.val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", d.name, *d.val, err)
		}
		if v < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", d.name, *d.val)
		}
	}

	if c.MinConfidence != nil && (*c.MinConfidence < 0 || *c.MinConfidence > 1) {
		return fmt.Errorf("min_confidence must be between 0 and 1, got %f", *c.MinConfidence)
	}
	if c.RatePerMinute != nil && *c.RatePerMinute < 0 {
		return fmt.Errorf("rate_per_minute must be non-negative, got %f", *c.RatePerMinute)
	}
	for _, id := range c.TargetClassIDs {
		if id < 0 {
			return fmt.Errorf("target_class_ids must be non-negative, got %d", id)
		}
	}
	for _, name := range c.TargetClassNames {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("target_class_names must not contain empty names")
		}
	}
	if c.Timezone != nil && *c.Timezone != "" && *c.Timezone != units.LocalTimezone {
		if !units.IsTimezoneValid(*c.Timezone) {
			return fmt.Errorf("unknown timezone %q", *c.Timezone)
		}
	}
	if c.SessionQueueSize != nil && *c.SessionQueueSize < 1 {
		return fmt.Errorf("session_queue_size must be positive, got %d", *c.SessionQueueSize)
	}
	if c.SessionMaxRetries != nil && *c.SessionMaxRetries < 0 {
		return fmt.Errorf("session_max_retries must be non-negative, got %d", *c.SessionMaxRetries)
	}

	window, required := c.GetDebounceWindow(), c.GetDebounceRequired()
	if c.DebounceWindow != nil && *c.DebounceWindow < 0 {
		return fmt.Errorf("debounce_window must be non-negative, got %d", *c.DebounceWindow)
	}
	if window > 1 && (required < 1 || required > window) {
		return fmt.Errorf("debounce_required must be between 1 and debounce_window (%d), got %d", window, required)
	}

	return nil
}

// GetSpacesPath returns the space definitions path or the default.
func (c *Config) GetSpacesPath() string {
	if c.SpacesPath == nil || *c.SpacesPath == "" {
		return DefaultSpacesPath
	}
	return *c.SpacesPath
}

// GetStatusPath returns the status snapshot path or the default.
func (c *Config) GetStatusPath() string {
	if c.StatusPath == nil || *c.StatusPath == "" {
		return DefaultStatusPath
	}
	return *c.StatusPath
}

// GetDBPath returns the session database path or the default.
func (c *Config) GetDBPath() string {
	if c.DBPath == nil || *c.DBPath == "" {
		return DefaultDBPath
	}
	return *c.DBPath
}

// GetDetectorSource returns the detector source descriptor or the default.
func (c *Config) GetDetectorSource() string {
	if c.DetectorSource == nil || *c.DetectorSource == "" {
		return DefaultDetectorSource
	}
	return *c.DetectorSource
}

// GetTargetClassIDs returns the vehicle class ids. When neither ids nor
// names are configured the COCO "car" id is used.
func (c *Config) GetTargetClassIDs() []int {
	if len(c.TargetClassIDs) == 0 && len(c.TargetClassNames) == 0 {
		return []int{DefaultCarClassID}
	}
	return append([]int(nil), c.TargetClassIDs...)
}

// GetTargetClassNames returns the configured vehicle class names.
func (c *Config) GetTargetClassNames() []string {
	return append([]string(nil), c.TargetClassNames...)
}

// GetMinConfidence returns the detection confidence floor or the default.
func (c *Config) GetMinConfidence() float64 {
	if c.MinConfidence == nil {
		return DefaultMinConfidence
	}
	return *c.MinConfidence
}

// GetMinSessionDuration returns the shortest session worth recording.
// Zero records everything.
func (c *Config) GetMinSessionDuration() time.Duration {
	return parseDuration(c.MinSessionDuration, 0)
}

// GetRatePerMinute returns the tariff or the default.
func (c *Config) GetRatePerMinute() float64 {
	if c.RatePerMinute == nil {
		return units.DefaultRatePerMinute
	}
	return *c.RatePerMinute
}

// GetTimezone returns the timezone used to date sessions.
func (c *Config) GetTimezone() string {
	if c.Timezone == nil || *c.Timezone == "" {
		return DefaultTimezone
	}
	return *c.Timezone
}

// GetAsyncSessions reports whether session writes go through the queue.
func (c *Config) GetAsyncSessions() bool {
	if c.AsyncSessions == nil {
		return false
	}
	return *c.AsyncSessions
}

// GetSessionQueueSize returns the async session queue capacity.
func (c *Config) GetSessionQueueSize() int {
	if c.SessionQueueSize == nil {
		return DefaultSessionQueueSize
	}
	return *c.SessionQueueSize
}

// GetSessionMaxRetries returns how many times a failed append is retried.
func (c *Config) GetSessionMaxRetries() int {
	if c.SessionMaxRetries == nil {
		return DefaultSessionRetries
	}
	return *c.SessionMaxRetries
}

// GetFrameInterval returns the replay pacing interval; zero disables pacing.
func (c *Config) GetFrameInterval() time.Duration {
	return parseDuration(c.FrameInterval, 0)
}

// GetDebounceWindow returns the debounce window; 0 or 1 disables debouncing.
func (c *Config) GetDebounceWindow() int {
	if c.DebounceWindow == nil {
		return 0
	}
	return *c.DebounceWindow
}

// GetDebounceRequired returns how many of the last window observations must
// agree before a space flips. Defaults to a simple majority.
func (c *Config) GetDebounceRequired() int {
	if c.DebounceRequired == nil {
		return c.GetDebounceWindow()/2 + 1
	}
	return *c.DebounceRequired
}

// GetRestoreOccupancy reports whether in-progress occupancies are restored
// from the checkpoint table at startup.
func (c *Config) GetRestoreOccupancy() bool {
	if c.RestoreOccupancy == nil {
		return false
	}
	return *c.RestoreOccupancy
}

// GetListen returns the HTTP listen address or the default.
func (c *Config) GetListen() string {
	if c.Listen == nil {
		return DefaultListen
	}
	return *c.Listen
}

func parseDuration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}
