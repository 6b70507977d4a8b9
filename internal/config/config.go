// Package config loads freed-tools defaults from a JSON or TOML file.
//
// Every field is a pointer so a partial file only overrides what it names;
// the Get* methods supply defaults for the rest. Command-line flags that
// were set explicitly take precedence over the file.
package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/banshee-data/freed-tools/internal/freed"
	"github.com/banshee-data/freed-tools/internal/network"
	"github.com/banshee-data/freed-tools/internal/pattern"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Defaults applied when a field is absent.
const (
	DefaultListenIP       = "0.0.0.0"
	DefaultTargetIP       = "127.0.0.1"
	DefaultPort           = 6000
	DefaultRate           = 30.0
	DefaultSpeed          = 1.0
	DefaultReadTimeout    = time.Second
	DefaultReportInterval = time.Second
	DefaultMaxSources     = 64
)

// Config is the on-disk configuration shared by all subcommands.
type Config struct {
	// Listening (validate)
	ListenIP       *string `json:"listen_ip,omitempty" toml:"listen_ip"`
	ListenPort     *int    `json:"listen_port,omitempty" toml:"listen_port"`
	ReadTimeout    *string `json:"read_timeout,omitempty" toml:"read_timeout"`       // duration string like "1s"
	ReportInterval *string `json:"report_interval,omitempty" toml:"report_interval"` // duration string like "1s"
	LensPolicy     *string `json:"lens_policy,omitempty" toml:"lens_policy"`         // "strict" or "omit"
	Forward        *string `json:"forward,omitempty" toml:"forward"`                 // host:port
	MaxSources     *int    `json:"max_sources,omitempty" toml:"max_sources"`
	DBPath         *string `json:"db_path,omitempty" toml:"db_path"`

	// Sending (replay, simulate)
	TargetIP   *string  `json:"target_ip,omitempty" toml:"target_ip"`
	TargetPort *int     `json:"target_port,omitempty" toml:"target_port"`
	Rate       *float64 `json:"rate,omitempty" toml:"rate"`
	Speed      *float64 `json:"speed,omitempty" toml:"speed"`
	Loop       *bool    `json:"loop,omitempty" toml:"loop"`

	// Simulator pattern
	Pattern       *string  `json:"pattern,omitempty" toml:"pattern"`
	PatternSize   *float64 `json:"pattern_size,omitempty" toml:"pattern_size"`
	PatternHeight *float64 `json:"pattern_height,omitempty" toml:"pattern_height"`
	PatternPeriod *string  `json:"pattern_period,omitempty" toml:"pattern_period"`

	Serial *network.SerialOptions `json:"serial,omitempty" toml:"serial"`

	LogLevel *string `json:"log_level,omitempty" toml:"log_level"`
}

func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Default returns a Config with every field populated from the defaults.
func Default() *Config {
	p := pattern.DefaultParams()
	return &Config{
		ListenIP:       ptrString(DefaultListenIP),
		ListenPort:     ptrInt(DefaultPort),
		ReadTimeout:    ptrString(DefaultReadTimeout.String()),
		ReportInterval: ptrString(DefaultReportInterval.String()),
		LensPolicy:     ptrString(freed.LensStrict.String()),
		Forward:        ptrString(""),
		MaxSources:     ptrInt(DefaultMaxSources),
		DBPath:         ptrString(""),
		TargetIP:       ptrString(DefaultTargetIP),
		TargetPort:     ptrInt(DefaultPort),
		Rate:           ptrFloat64(DefaultRate),
		Speed:          ptrFloat64(DefaultSpeed),
		Loop:           ptrBool(false),
		Pattern:        ptrString(pattern.Circle.String()),
		PatternSize:    ptrFloat64(p.Size),
		PatternHeight:  ptrFloat64(p.Height),
		PatternPeriod:  ptrString(p.Period.String()),
		Serial:         &network.SerialOptions{BaudRate: 38400, DataBits: 8, StopBits: 1, Parity: "O"},
		LogLevel:       ptrString(zerolog.InfoLevel.String()),
	}
}

// Load reads a .json or .toml config file. Fields omitted from the file
// stay nil, so partial configs are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".toml" {
		return nil, fmt.Errorf("config file must have .json or .toml extension, got %q", ext)
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

	cfg := Empty()
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	case ".toml":
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config key %q", undecoded[0].String())
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *Config) Validate() error {
	for name, ip := range map[string]*string{"listen_ip": c.ListenIP, "target_ip": c.TargetIP} {
		if ip != nil && *ip != "" && net.ParseIP(*ip) == nil && !validHostname(*ip) {
			return fmt.Errorf("%s %q is not an IP address or hostname", name, *ip)
		}
	}
	for name, port := range map[string]*int{"listen_port": c.ListenPort, "target_port": c.TargetPort} {
		if port != nil && (*port < 1 || *port > 65535) {
			return fmt.Errorf("%s must be between 1 and 65535, got %d", name, *port)
		}
	}
	for name, d := range map[string]*string{
		"read_timeout":    c.ReadTimeout,
		"report_interval": c.ReportInterval,
		"pattern_period":  c.PatternPeriod,
	} {
		if d == nil || *d == "" {
			continue
		}
		v, err := time.ParseDuration(*d)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *d, err)
		}
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, *d)
		}
	}
	if c.Rate != nil && *c.Rate <= 0 {
		return fmt.Errorf("rate must be positive, got %g", *c.Rate)
	}
	if c.Speed != nil && *c.Speed <= 0 {
		return fmt.Errorf("speed must be positive, got %g", *c.Speed)
	}
	if c.MaxSources != nil && *c.MaxSources < 1 {
		return fmt.Errorf("max_sources must be at least 1, got %d", *c.MaxSources)
	}
	if c.LensPolicy != nil {
		if _, err := freed.ParseLensPolicy(*c.LensPolicy); err != nil {
			return err
		}
	}
	if c.Pattern != nil && *c.Pattern != "" {
		if _, err := pattern.ParseVariant(*c.Pattern); err != nil {
			return err
		}
	}
	if c.Forward != nil && *c.Forward != "" {
		if _, _, err := SplitHostPort(*c.Forward); err != nil {
			return fmt.Errorf("invalid forward address: %w", err)
		}
	}
	if c.Serial != nil {
		if _, err := c.Serial.Normalize(); err != nil {
			return fmt.Errorf("invalid serial options: %w", err)
		}
	}
	if c.LogLevel != nil && *c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(*c.LogLevel); err != nil {
			return fmt.Errorf("invalid log_level %q", *c.LogLevel)
		}
	}
	return nil
}

func validHostname(h string) bool {
	if len(h) == 0 || len(h) > 253 {
		return false
	}
	for _, r := range h {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '.':
		default:
			return false
		}
	}
	return true
}

// SplitHostPort parses "host:port" and validates the port range.
func SplitHostPort(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := net.LookupPort("udp", portStr)
	if err != nil {
		return "", 0, err
	}
	if port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("port %d out of range", port)
	}
	return host, port, nil
}

func stringOr(p *string, def string) string {
	if p == nil || *p == "" {
		return def
	}
	return *p
}

func durationOr(p *string, def time.Duration) time.Duration {
	if p == nil || *p == "" {
		return def
	}
	d, err := time.ParseDuration(*p)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// GetListenIP returns the listen_ip value or the default.
func (c *Config) GetListenIP() string { return stringOr(c.ListenIP, DefaultListenIP) }

// GetListenPort returns the listen_port value or the default.
func (c *Config) GetListenPort() int {
	if c.ListenPort == nil {
		return DefaultPort
	}
	return *c.ListenPort
}

// GetReadTimeout parses and returns the read_timeout value.
func (c *Config) GetReadTimeout() time.Duration {
	return durationOr(c.ReadTimeout, DefaultReadTimeout)
}

// GetReportInterval parses and returns the report_interval value.
func (c *Config) GetReportInterval() time.Duration {
	return durationOr(c.ReportInterval, DefaultReportInterval)
}

// GetLensPolicy returns the decoder lens policy, LensStrict by default.
func (c *Config) GetLensPolicy() freed.LensPolicy {
	if c.LensPolicy == nil {
		return freed.LensStrict
	}
	p, err := freed.ParseLensPolicy(*c.LensPolicy)
	if err != nil {
		return freed.LensStrict
	}
	return p
}

// GetForward returns the forward address, empty when forwarding is off.
func (c *Config) GetForward() string { return stringOr(c.Forward, "") }

// GetMaxSources returns the max_sources value or the default.
func (c *Config) GetMaxSources() int {
	if c.MaxSources == nil {
		return DefaultMaxSources
	}
	return *c.MaxSources
}

// GetDBPath returns the capture store path, empty when unset.
func (c *Config) GetDBPath() string { return stringOr(c.DBPath, "") }

// GetTargetIP returns the target_ip value or the default.
func (c *Config) GetTargetIP() string { return stringOr(c.TargetIP, DefaultTargetIP) }

// GetTargetPort returns the target_port value or the default.
func (c *Config) GetTargetPort() int {
	if c.TargetPort == nil {
		return DefaultPort
	}
	return *c.TargetPort
}

// GetRate returns the simulator packet rate.
func (c *Config) GetRate() float64 {
	if c.Rate == nil {
		return DefaultRate
	}
	return *c.Rate
}

// GetSpeed returns the replay speed multiplier.
func (c *Config) GetSpeed() float64 {
	if c.Speed == nil {
		return DefaultSpeed
	}
	return *c.Speed
}

// GetLoop returns the loop value or false.
func (c *Config) GetLoop() bool {
	if c.Loop == nil {
		return false
	}
	return *c.Loop
}

// GetPattern returns the configured simulator variant, Circle by default.
func (c *Config) GetPattern() pattern.Variant {
	if c.Pattern == nil {
		return pattern.Circle
	}
	v, err := pattern.ParseVariant(*c.Pattern)
	if err != nil {
		return pattern.Circle
	}
	return v
}

// GetPatternParams merges the pattern_* fields over pattern.DefaultParams.
func (c *Config) GetPatternParams() pattern.Params {
	p := pattern.DefaultParams()
	if c.PatternSize != nil {
		p.Size = *c.PatternSize
	}
	if c.PatternHeight != nil {
		p.Height = *c.PatternHeight
	}
	p.Period = durationOr(c.PatternPeriod, p.Period)
	return p
}

// GetSerialOptions returns normalised serial options.
func (c *Config) GetSerialOptions() network.SerialOptions {
	var opts network.SerialOptions
	if c.Serial != nil {
		opts = *c.Serial
	}
	norm, err := opts.Normalize()
	if err != nil {
		norm, _ = network.SerialOptions{}.Normalize()
	}
	return norm
}

// GetLogLevel returns the configured level, or NoLevel when unset so the
// environment can decide.
func (c *Config) GetLogLevel() zerolog.Level {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return zerolog.NoLevel
	}
	lvl, err := zerolog.ParseLevel(*c.LogLevel)
	if err != nil {
		return zerolog.NoLevel
	}
	return lvl
}
