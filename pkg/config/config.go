// Package config loads the bridge's configuration from defaults, an
// optional YAML file, OSPD_-prefixed environment variables and
// command-line flags, in that order of precedence.
package config

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Global koanf instance, initialized once at startup.
var (
	k    *koanf.Koanf
	once sync.Once
)

func newKoanf() *koanf.Koanf {
	return koanf.New(".")
}

// InitGlobalConfig initializes the global koanf instance. It is called
// early in the application lifecycle, before Load.
func InitGlobalConfig() {
	once.Do(func() {
		k = newKoanf()
	})
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// KBConfig controls the shared blackboard store.
type KBConfig struct {
	// Indices is the number of address spaces the store exposes.
	Indices int `koanf:"indices"`
}

// EngineConfig locates the engine binary and tunes the controller.
type EngineConfig struct {
	Path              string        `koanf:"path"`
	PollInterval      time.Duration `koanf:"poll_interval"`
	ReadyPollInterval time.Duration `koanf:"ready_poll_interval"`
	ReadyTimeout      time.Duration `koanf:"ready_timeout"`
}

// FeedConfig tunes the VT feed watcher.
type FeedConfig struct {
	CheckInterval time.Duration `koanf:"check_interval"`
}

// ScanConfig carries scan request defaults.
type ScanConfig struct {
	DefaultPorts string `koanf:"default_ports"`
}

// Config is the bridge's full configuration.
type Config struct {
	Log       LogConfig    `koanf:"log"`
	KB        KBConfig     `koanf:"kb"`
	Engine    EngineConfig `koanf:"engine"`
	Feed      FeedConfig   `koanf:"feed"`
	Scan      ScanConfig   `koanf:"scan"`
	Workspace string       `koanf:"workspace"`
}

// DefaultConfig returns the baseline configuration, overridden by file,
// environment and flag sources.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		KB: KBConfig{
			Indices: 17,
		},
		Engine: EngineConfig{
			Path:              "openvassd",
			PollInterval:      3 * time.Second,
			ReadyPollInterval: time.Second,
			ReadyTimeout:      60 * time.Second,
		},
		Feed: FeedConfig{
			CheckInterval: 10 * time.Second,
		},
		Scan: ScanConfig{
			DefaultPorts: "T:1-65535",
		},
		Workspace: "/var/run/ospd-openvas",
	}
}

// DefaultConfigAsMap flattens DefaultConfig for koanf's confmap provider,
// so every key is known to the merged tree.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		"kb.indices": def.KB.Indices,

		"engine.path":                def.Engine.Path,
		"engine.poll_interval":       def.Engine.PollInterval.String(),
		"engine.ready_poll_interval": def.Engine.ReadyPollInterval.String(),
		"engine.ready_timeout":       def.Engine.ReadyTimeout.String(),

		"feed.check_interval": def.Feed.CheckInterval.String(),

		"scan.default_ports": def.Scan.DefaultPorts,

		"workspace": def.Workspace,
	}
}

// Manager handles loading and accessing the application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex
}

// NewManager creates a Manager backed by the global koanf instance.
func NewManager() *Manager {
	InitGlobalConfig()
	return &Manager{koanfInstance: k}
}

// Load loads configuration from the default sources.
//
// Precedence (highest to lowest):
//  1. Command-line flags (--log.level=debug)
//  2. Environment variables (OSPD_LOG_LEVEL=debug)
//  3. Config file (YAML)
//  4. Default values
func (m *Manager) Load(flags *pflag.FlagSet, configFilePath string) error {
	return m.LoadWithSources(DefaultSources(configFilePath, flags))
}

// LoadWithSources loads configuration from the given sources in priority
// order. Lower priority values load first and are overridden by higher
// ones.
func (m *Manager) LoadWithSources(sources []Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})

	for _, src := range sources {
		if err := src.Load(m.koanfInstance); err != nil {
			return fmt.Errorf("error loading config from %s: %w", src.Name(), err)
		}
	}

	var cfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	m.currentConfig = cfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentConfig
}

// GetValue retrieves one configuration value by key path, nil when the
// key does not exist.
func (m *Manager) GetValue(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance.Get(key)
}

// BindFlags defines the command-line flags that override configuration
// settings. Called when setting up the cobra commands.
func BindFlags(flags *pflag.FlagSet) {
	defaults := DefaultConfig()
	flags.String("log.level", defaults.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("engine.path", defaults.Engine.Path, "Path to the engine binary")
	flags.String("workspace", defaults.Workspace, "Workspace directory holding the instance lock")
}
