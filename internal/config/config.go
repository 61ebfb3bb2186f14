// Package config loads beamsplit's profile and run configuration. Files are
// TOML unless their extension says YAML; an optional .env file beside the
// config and BEAMSPLIT_* environment variables override run settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/bamsammich/beamsplit/internal/chunk"
	"github.com/bamsammich/beamsplit/internal/filter"
)

// Defaults applied to unset fields.
const (
	DefaultMaxSize           = "10G"
	DefaultMaxFiles          = 50000
	DefaultMaxConcurrentJobs = 4
	DefaultMaxRetries        = 2
	DefaultCopyRetries       = 1
	DefaultCopyRetryWait     = 5
	DefaultTickInterval      = time.Second
	DefaultCopyTool          = "robocopy"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "BEAMSPLIT_"

// ErrNoProfiles is returned by Validate for a config without profiles.
var ErrNoProfiles = errors.New("no profiles configured")

// Config is the whole configuration file.
type Config struct {
	Run      RunConfig `toml:"run" yaml:"run"`
	Profiles []Profile `toml:"profile" yaml:"profiles"`
}

// RunConfig holds run-wide settings. Nil means unset.
type RunConfig struct {
	MaxConcurrentJobs  *int     `toml:"max_concurrent_jobs" yaml:"max_concurrent_jobs"`
	MaxRetries         *int     `toml:"max_retries" yaml:"max_retries"`
	BandwidthLimitMbps *float64 `toml:"bandwidth_limit_mbps" yaml:"bandwidth_limit_mbps"`
	LaunchesPerSecond  *float64 `toml:"launches_per_second" yaml:"launches_per_second"`
	CopyRetries        *int     `toml:"copy_retries" yaml:"copy_retries"`
	CopyRetryWait      *int     `toml:"copy_retry_wait" yaml:"copy_retry_wait"`
	MismatchSeverity   *string  `toml:"mismatch_severity" yaml:"mismatch_severity"`
	TickInterval       *string  `toml:"tick_interval" yaml:"tick_interval"`
	AwaitOperator      *string  `toml:"await_operator" yaml:"await_operator"`
	Checkpoint         *bool    `toml:"checkpoint" yaml:"checkpoint"`
	CopyTool           *string  `toml:"copy_tool" yaml:"copy_tool"`
	LogDir             *string  `toml:"log_dir" yaml:"log_dir"`
	StatusAddr         *string  `toml:"status_addr" yaml:"status_addr"`
	CopyArgs           []string `toml:"copy_args" yaml:"copy_args"`

	Snapshot SnapshotConfig `toml:"snapshot" yaml:"snapshot"`
	Mount    MountConfig    `toml:"mount" yaml:"mount"`
}

// SnapshotConfig holds the snapshot helper commands.
type SnapshotConfig struct {
	Create []string `toml:"create" yaml:"create"`
	Delete []string `toml:"delete" yaml:"delete"`
}

// MountConfig holds the share mount helper commands and the local points
// they may use.
type MountConfig struct {
	Points  []string `toml:"points" yaml:"points"`
	Mount   []string `toml:"mount" yaml:"mount"`
	Unmount []string `toml:"unmount" yaml:"unmount"`
}

// Profile is one source to destination replication.
type Profile struct {
	MaxDepth    *int     `toml:"max_depth" yaml:"max_depth"`
	Name        string   `toml:"name" yaml:"name"`
	Source      string   `toml:"source" yaml:"source"`
	Destination string   `toml:"destination" yaml:"destination"`
	Mode        string   `toml:"mode" yaml:"mode"`
	MaxSize     string   `toml:"max_size" yaml:"max_size"`
	MinSize     string   `toml:"min_size" yaml:"min_size"`
	ExcludeDirs []string `toml:"exclude_dirs" yaml:"exclude_dirs"`
	MaxFiles    int64    `toml:"max_files" yaml:"max_files"`
	Snapshot    bool     `toml:"snapshot" yaml:"snapshot"`
	Disabled    bool     `toml:"disabled" yaml:"disabled"`
}

// Constraints converts the profile's limits. An explicit max_depth is used
// only when no mode is named; a mode applies its preset depth.
func (p Profile) Constraints() (chunk.Constraints, error) {
	maxSize := p.MaxSize
	if maxSize == "" {
		maxSize = DefaultMaxSize
	}
	maxBytes, err := filter.ParseSize(maxSize)
	if err != nil {
		return chunk.Constraints{}, fmt.Errorf("max_size: %w", err)
	}
	var minBytes int64
	if p.MinSize != "" {
		if minBytes, err = filter.ParseSize(p.MinSize); err != nil {
			return chunk.Constraints{}, fmt.Errorf("min_size: %w", err)
		}
	}
	maxFiles := p.MaxFiles
	if maxFiles == 0 {
		maxFiles = DefaultMaxFiles
	}
	c := chunk.Constraints{MaxSizeBytes: maxBytes, MaxFiles: maxFiles, MinSizeBytes: minBytes}

	if p.Mode == "" && p.MaxDepth != nil {
		c.MaxDepth = *p.MaxDepth
		return c, nil
	}
	mode, err := chunk.ParseMode(p.Mode)
	if err != nil {
		return chunk.Constraints{}, err
	}
	return mode.Apply(c), nil
}

// Validate checks one profile without touching the filesystem.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("profile name is empty")
	}
	c, err := p.Constraints()
	if err != nil {
		return fmt.Errorf("profile %q: %w", p.Name, err)
	}
	err = chunk.ValidateRequest(nil, chunk.Request{Path: p.Source, DestinationRoot: p.Destination, Constraints: c})
	if err != nil {
		return fmt.Errorf("profile %q: %w", p.Name, err)
	}
	return nil
}

// Settings are the resolved run settings.
type Settings struct {
	MismatchSeverity   string
	CopyTool           string
	LogDir             string
	StatusAddr         string
	CopyArgs           []string
	Snapshot           SnapshotConfig
	Mount              MountConfig
	MaxConcurrentJobs  int
	MaxRetries         int
	CopyRetries        int
	CopyRetryWait      int
	BandwidthLimitMbps float64
	LaunchesPerSecond  float64
	TickInterval       time.Duration
	AwaitOperator      time.Duration
	Checkpoint         bool
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		CopyTool:          DefaultCopyTool,
		MaxConcurrentJobs: DefaultMaxConcurrentJobs,
		MaxRetries:        DefaultMaxRetries,
		CopyRetries:       DefaultCopyRetries,
		CopyRetryWait:     DefaultCopyRetryWait,
		TickInterval:      DefaultTickInterval,
		Checkpoint:        true,
	}
}

// Settings resolves the run section over the defaults.
func (c Config) Settings() (Settings, error) {
	s := DefaultSettings()
	r := c.Run
	setIf(&s.MaxConcurrentJobs, r.MaxConcurrentJobs)
	setIf(&s.MaxRetries, r.MaxRetries)
	setIf(&s.BandwidthLimitMbps, r.BandwidthLimitMbps)
	setIf(&s.LaunchesPerSecond, r.LaunchesPerSecond)
	setIf(&s.CopyRetries, r.CopyRetries)
	setIf(&s.CopyRetryWait, r.CopyRetryWait)
	setIf(&s.MismatchSeverity, r.MismatchSeverity)
	setIf(&s.Checkpoint, r.Checkpoint)
	setIf(&s.CopyTool, r.CopyTool)
	setIf(&s.LogDir, r.LogDir)
	setIf(&s.StatusAddr, r.StatusAddr)
	s.CopyArgs = r.CopyArgs
	s.Snapshot = r.Snapshot
	s.Mount = r.Mount

	var err error
	if r.TickInterval != nil {
		if s.TickInterval, err = time.ParseDuration(*r.TickInterval); err != nil {
			return Settings{}, fmt.Errorf("tick_interval: %w", err)
		}
	}
	if r.AwaitOperator != nil {
		if s.AwaitOperator, err = time.ParseDuration(*r.AwaitOperator); err != nil {
			return Settings{}, fmt.Errorf("await_operator: %w", err)
		}
	}
	return s, nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// ApplyEnv overrides settings from BEAMSPLIT_* variables in env, a lookup
// function such as os.LookupEnv.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	ints := map[string]*int{
		"MAX_JOBS":        &s.MaxConcurrentJobs,
		"MAX_RETRIES":     &s.MaxRetries,
		"COPY_RETRIES":    &s.CopyRetries,
		"COPY_RETRY_WAIT": &s.CopyRetryWait,
	}
	floats := map[string]*float64{
		"BWLIMIT_MBPS": &s.BandwidthLimitMbps,
		"LAUNCH_RATE":  &s.LaunchesPerSecond,
	}
	strs := map[string]*string{
		"COPY_TOOL":         &s.CopyTool,
		"LOG_DIR":           &s.LogDir,
		"STATUS_ADDR":       &s.StatusAddr,
		"MISMATCH_SEVERITY": &s.MismatchSeverity,
	}

	for _, name := range sortedKeys(ints) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*ints[name] = n
		}
	}
	for _, name := range sortedKeys(floats) {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
			}
			*floats[name] = f
		}
	}
	for _, name := range sortedKeys(strs) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*strs[name] = v
		}
	}
	if v, ok := lookup(EnvPrefix + "CHECKPOINT"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%sCHECKPOINT: %w", EnvPrefix, err)
		}
		s.Checkpoint = b
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks the resolved settings.
func (s Settings) Validate() error {
	switch {
	case s.MaxConcurrentJobs < 1:
		return fmt.Errorf("max_concurrent_jobs must be at least 1, got %d", s.MaxConcurrentJobs)
	case s.MaxRetries < 0:
		return fmt.Errorf("max_retries must not be negative, got %d", s.MaxRetries)
	case s.CopyRetries < 0 || s.CopyRetryWait < 0:
		return errors.New("copy_retries and copy_retry_wait must not be negative")
	case s.BandwidthLimitMbps < 0:
		return fmt.Errorf("bandwidth_limit_mbps must not be negative, got %g", s.BandwidthLimitMbps)
	case s.LaunchesPerSecond < 0:
		return fmt.Errorf("launches_per_second must not be negative, got %g", s.LaunchesPerSecond)
	case s.TickInterval <= 0:
		return fmt.Errorf("tick_interval must be positive, got %s", s.TickInterval)
	case s.AwaitOperator < 0:
		return fmt.Errorf("await_operator must not be negative, got %s", s.AwaitOperator)
	case strings.TrimSpace(s.CopyTool) == "":
		return errors.New("copy_tool is empty")
	case len(s.Mount.Mount) > 0 && len(s.Mount.Points) == 0:
		return errors.New("mount command configured without mount points")
	}
	switch strings.ToLower(strings.TrimSpace(s.MismatchSeverity)) {
	case "", "success", "ok", "warning", "warn", "error":
	default:
		return fmt.Errorf("invalid mismatch_severity %q (want success, warning or error)", s.MismatchSeverity)
	}
	return nil
}

// Validate checks every profile and the run settings.
func (c Config) Validate() error {
	if len(c.Profiles) == 0 {
		return ErrNoProfiles
	}
	s, err := c.Settings()
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	seen := make(map[string]bool, len(c.Profiles))
	for _, p := range c.Profiles {
		if err := p.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(p.Name)
		if seen[key] {
			return fmt.Errorf("duplicate profile name %q", p.Name)
		}
		seen[key] = true
		if p.Snapshot && len(s.Snapshot.Create) == 0 {
			return fmt.Errorf("profile %q: snapshot requested but no snapshot create command configured", p.Name)
		}
	}
	return nil
}

// Select returns the enabled profiles, or the named ones in the given
// order when names is non-empty. Names match case-insensitively.
func (c Config) Select(names []string) ([]Profile, error) {
	if len(names) == 0 {
		var out []Profile
		for _, p := range c.Profiles {
			if !p.Disabled {
				out = append(out, p)
			}
		}
		return out, nil
	}
	out := make([]Profile, 0, len(names))
	for _, name := range names {
		found := false
		for _, p := range c.Profiles {
			if strings.EqualFold(p.Name, name) {
				out = append(out, p)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown profile %q", name)
		}
	}
	return out, nil
}

// Path returns the default config file location.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "beamsplit", "config.toml")
}

// Load reads the config at path, or at Path() when path is empty. A
// missing file at the default location yields a zero Config; a missing
// explicit file is an error. A .env file next to the config is loaded into
// the process environment without replacing variables already set.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = Path()
		if path == "" {
			return Config{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return Config{}, err
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil //nolint:nilerr // the .env file is optional
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Parse decodes config data. ext selects the format: ".yaml" and ".yml"
// are YAML, anything else TOML. Unknown keys are rejected.
func Parse(data []byte, ext string) (Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("parse toml: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
		}
	}
	return cfg, nil
}
