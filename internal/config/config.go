package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

/*
Config System Design:
Configuration is hierarchical with the following precedence (highest to lowest):

1. Runtime overrides (CLI flags)
2. Environment variables (TOOLTURN_* plus the mapped variables below)
3. Local project config (.toolturn/*.toolturn.{yaml,json})
4. Global user config ($XDG_CONFIG_HOME/toolturn/*.toolturn.{yaml,json})
5. Default values (embedded defaults.toolturn.yaml)

Multiple files in one directory are merged alphabetically. Lists combine,
maps merge deeply and scalars override.
*/

//go:embed defaults.toolturn.yaml
var defaultsYAML []byte

const appName = "toolturn"

// Config holds the merged settings and where each one came from.
type Config struct {
	v       *viper.Viper
	mu      sync.RWMutex
	sources map[string][]configSource
}

type configSource struct {
	value  interface{}
	source string
}

// envVarConfig defines an environment variable mapping
type envVarConfig struct {
	key      string // Key in the config
	envVar   string // Environment variable name
	isSecret bool   // Whether to redact in logs
}

var envVars = []envVarConfig{
	{key: "provider.apiKey", envVar: "DASHSCOPE_API_KEY", isSecret: true},
	{key: "plugins.alibaba-search.auth.token", envVar: "ALIBABA_SEARCH_TOKEN", isSecret: true},
}

// Dirs are the directories searched for config files.
type Dirs struct {
	Global string
	Local  string
}

// DefaultDirs returns $XDG_CONFIG_HOME/toolturn and ./.toolturn.
func DefaultDirs() (Dirs, error) {
	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Dirs{}, err
		}
		xdgConfig = filepath.Join(home, ".config")
	}
	return Dirs{
		Global: filepath.Join(xdgConfig, appName),
		Local:  "." + appName,
	}, nil
}

// New loads configuration from the default locations, applies overrides and
// validates the result.
func New(overrides *RuntimeOverrides) (*ConfigSchema, error) {
	dirs, err := DefaultDirs()
	if err != nil {
		return nil, err
	}
	c, err := Load(dirs)
	if err != nil {
		return nil, err
	}
	cfg, err := c.Schema()
	if err != nil {
		return nil, err
	}
	overrides.Apply(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads defaults, .env files and every config file in dirs.
func Load(dirs Dirs) (*Config, error) {
	c := &Config{
		v:       viper.New(),
		sources: make(map[string][]configSource),
	}

	if err := c.loadDefaults(); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	loadEnv()
	c.v.SetEnvPrefix(strings.ToUpper(appName))
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()
	for _, env := range envVars {
		if err := c.v.BindEnv(env.key, env.envVar); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env.envVar, err)
		}
	}

	if err := c.loadConfigs(dirs); err != nil {
		return nil, err
	}
	c.trackEnvSources()

	return c, nil
}

func (c *Config) loadDefaults() error {
	c.v.SetConfigType("yaml")
	if err := c.v.ReadConfig(bytes.NewReader(defaultsYAML)); err != nil {
		return fmt.Errorf("could not read defaults: %w", err)
	}
	return nil
}

// findConfigFiles returns all *.toolturn.{yaml,json} files in a directory
func findConfigFiles(dir string) ([]string, error) {
	var files []string
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, "."+appName+".yaml") ||
			strings.HasSuffix(name, "."+appName+".json") {
			files = append(files, filepath.Join(dir, name))
		}
	}
	sort.Strings(files)
	return files, nil
}

func (c *Config) loadConfigs(dirs Dirs) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	known := GetKnownKeys()
	for _, dir := range []string{dirs.Global, dirs.Local} {
		if dir == "" {
			continue
		}
		files, err := findConfigFiles(dir)
		if err != nil && !os.IsNotExist(err) {
			return err
		}

		for _, f := range files {
			v := viper.New()
			v.SetConfigFile(f)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("error reading config file %s: %w", f, err)
			}

			for _, key := range v.AllKeys() {
				if !IsKnownKey(known, key) {
					slog.Warn("unknown configuration key", "key", key, "file", f)
				}
				c.sources[key] = append(c.sources[key], configSource{value: v.Get(key), source: f})
			}

			if err := c.mergeConfig(v.AllSettings()); err != nil {
				return fmt.Errorf("error merging config from %s: %w", f, err)
			}
		}
	}
	return nil
}

func (c *Config) trackEnvSources() {
	for _, env := range envVars {
		if val := os.Getenv(env.envVar); val != "" {
			displayVal := interface{}(val)
			if env.isSecret {
				displayVal = "[REDACTED]"
			}
			key := strings.ToLower(env.key)
			c.sources[key] = append(c.sources[key], configSource{
				value:  displayVal,
				source: fmt.Sprintf("%s environment variable", env.envVar),
			})
		}
	}
}

func (c *Config) mergeConfig(settings map[string]interface{}) error {
	for key, value := range settings {
		existing := c.v.Get(key)
		if existing == nil {
			c.v.Set(key, value)
			continue
		}

		switch existingVal := existing.(type) {
		case []interface{}:
			newSlice, ok := value.([]interface{})
			if !ok {
				return fmt.Errorf("type mismatch for key %s: expected slice, got %T", key, value)
			}
			c.v.Set(key, appendUnique(existingVal, newSlice))

		case map[string]interface{}:
			newMap, ok := value.(map[string]interface{})
			if !ok {
				return fmt.Errorf("type mismatch for key %s: expected map, got %T", key, value)
			}
			c.v.Set(key, mergeMapRecursive(existingVal, newMap))

		default:
			c.v.Set(key, value)
		}
	}
	return nil
}

func appendUnique(existing, added []interface{}) []interface{} {
	seen := make(map[string]bool)
	combined := make([]interface{}, 0, len(existing)+len(added))
	for _, list := range [][]interface{}{existing, added} {
		for _, v := range list {
			k := fmt.Sprintf("%#v", v)
			if !seen[k] {
				seen[k] = true
				combined = append(combined, v)
			}
		}
	}
	return combined
}

func mergeMapRecursive(existing, new map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})

	for k, v := range existing {
		result[k] = v
	}

	for k, v := range new {
		if existing[k] == nil {
			result[k] = v
			continue
		}

		switch existingVal := existing[k].(type) {
		case map[string]interface{}:
			if newVal, ok := v.(map[string]interface{}); ok {
				result[k] = mergeMapRecursive(existingVal, newVal)
			} else {
				result[k] = v
			}
		case []interface{}:
			if newVal, ok := v.([]interface{}); ok {
				result[k] = appendUnique(existingVal, newVal)
			} else {
				result[k] = v
			}
		default:
			result[k] = v
		}
	}

	return result
}

// Schema returns the typed configuration.
func (c *Config) Schema() (*ConfigSchema, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var cfg ConfigSchema
	if err := c.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.sources = c.sources
	return &cfg, nil
}

// Validate validates the configuration against the schema
func Validate(cfg *ConfigSchema) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation error: %w", err)
	}

	if _, err := cfg.Provider.RequestTimeout(); err != nil {
		return err
	}
	if _, err := cfg.Agent.InvocationTimeout(); err != nil {
		return err
	}
	for id, p := range cfg.Plugins {
		if p.Kind == "mcp" && p.Command == "" {
			return fmt.Errorf("plugin %q: mcp plugins need a command", id)
		}
		if p.Auth.Type == "custom" && p.Auth.Header == "" && p.Auth.Token != "" {
			return fmt.Errorf("plugin %q: custom auth needs a header name", id)
		}
	}
	return nil
}

func (c *Config) GetString(key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.GetString(key)
}

func (c *Config) IsSet(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.IsSet(key)
}

func (c *Config) AllSettings() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v.AllSettings()
}
