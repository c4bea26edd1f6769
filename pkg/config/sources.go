package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"github.com/spf13/pflag"
)

// Source is one configuration source in the loading chain.
type Source interface {
	Name() string
	// Priority orders sources; higher priorities are loaded later and
	// override earlier ones.
	Priority() int
	Load(k *koanf.Koanf) error
}

// DefaultSources returns the standard chain: defaults, optional YAML
// file, OSPD_ environment variables, flags.
func DefaultSources(configFilePath string, flags *pflag.FlagSet) []Source {
	sources := []Source{
		defaultsSource{},
		envSource{prefix: "OSPD_"},
	}
	if configFilePath != "" {
		sources = append(sources, fileSource{path: configFilePath})
	}
	if flags != nil {
		sources = append(sources, flagSource{flags: flags})
	}
	return sources
}

type defaultsSource struct{}

func (defaultsSource) Name() string  { return "defaults" }
func (defaultsSource) Priority() int { return 0 }

func (defaultsSource) Load(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil)
}

type fileSource struct {
	path string
}

func (s fileSource) Name() string  { return "file " + s.path }
func (s fileSource) Priority() int { return 10 }

func (s fileSource) Load(k *koanf.Koanf) error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return k.Load(confmap.Provider(flatten("", tree), "."), nil)
}

// flatten turns a nested YAML tree into dotted koanf key paths.
func flatten(prefix string, tree map[string]any) map[string]any {
	flat := make(map[string]any)
	for key, value := range tree {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if sub, ok := value.(map[string]any); ok {
			for k, v := range flatten(path, sub) {
				flat[k] = v
			}
			continue
		}
		flat[path] = value
	}
	return flat
}

type envSource struct {
	prefix string
}

func (s envSource) Name() string  { return "environment" }
func (s envSource) Priority() int { return 20 }

// Load maps OSPD_LOG_LEVEL to log.level, OSPD_ENGINE_PATH to engine.path
// and so on. A double underscore marks a section boundary explicitly
// (OSPD_ENGINE__READY_TIMEOUT); without one the variable is resolved
// against the known keys, so OSPD_ENGINE_READY_TIMEOUT works too. Only
// keys the defaults know are accepted, so an unrelated variable cannot
// leak into the tree.
func (s envSource) Load(k *koanf.Koanf) error {
	known := DefaultConfigAsMap()
	values := make(map[string]any)
	for _, entry := range os.Environ() {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, s.prefix) {
			continue
		}
		path := strings.ToLower(strings.TrimPrefix(name, s.prefix))
		path = strings.ReplaceAll(path, "__", ".")
		if key, ok := matchKnownKey(known, path); ok {
			values[key] = value
		}
	}
	return k.Load(confmap.Provider(values, "."), nil)
}

// matchKnownKey resolves an underscore-separated env path against the known
// configuration keys. Section dots and underscores inside a leaf both come
// through the environment as '_', so candidates are compared with their
// dots flattened: engine_ready_timeout matches engine.ready_timeout.
func matchKnownKey(known map[string]any, path string) (string, bool) {
	if _, exists := known[path]; exists {
		return path, true
	}
	flat := strings.ReplaceAll(path, ".", "_")
	for key := range known {
		if strings.ReplaceAll(key, ".", "_") == flat {
			return key, true
		}
	}
	return "", false
}

type flagSource struct {
	flags *pflag.FlagSet
}

func (flagSource) Name() string  { return "flags" }
func (flagSource) Priority() int { return 30 }

// Load applies only flags the user actually set, so flag defaults do not
// clobber file or environment values.
func (s flagSource) Load(k *koanf.Koanf) error {
	values := make(map[string]any)
	s.flags.Visit(func(f *pflag.Flag) {
		if strings.Contains(f.Name, ".") || f.Name == "workspace" {
			values[f.Name] = f.Value.String()
		}
	})
	return k.Load(confmap.Provider(values, "."), nil)
}
