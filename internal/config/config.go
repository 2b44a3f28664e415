// Package config provides configuration file support for flashtrace: flag
// defaults, cross-field validation, and an optional YAML defaults file
// resolved through a per-OS search path.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"
)

// File is the on-disk configuration file structure. Defaults are applied
// when the corresponding flag is not given on the command line.
type File struct {
	Defaults Options           `yaml:"defaults"`
	Aliases  map[string]string `yaml:"aliases,omitempty"`
}

// Options holds every tunable named in the external interface: target
// generation, DCB lifecycle defaults, rate limiting, and the probe codec.
type Options struct {
	Targets      string `yaml:"targets"`
	Grain        uint8  `yaml:"grain"`
	GlobalOnly   bool   `yaml:"global_only"`
	AllowPrivate bool   `yaml:"allow_private"`
	Seed         uint64 `yaml:"seed"`

	PreprobingTTL uint8  `yaml:"preprobing_ttl"`
	ProximitySpan uint32 `yaml:"proximity_span"`
	SplitTTL      uint8  `yaml:"split_ttl"`
	MaxTTL        uint8  `yaml:"max_ttl"`
	Gap           uint8  `yaml:"gap"`

	ProbingRate uint64 `yaml:"probing_rate"`

	DstPort        uint16 `yaml:"dst_port"`
	SrcPort        uint16 `yaml:"src_port"`
	Salt           uint16 `yaml:"salt"`
	PayloadMessage string `yaml:"payload_message"`

	DryRun bool `yaml:"dry_run"`
	Two    bool `yaml:"two"`

	Interface string `yaml:"interface"`
}

// Default returns the flag defaults from the external interface table.
func Default() Options {
	return Options{
		Grain:          8,
		Seed:           114514,
		PreprobingTTL:  32,
		ProximitySpan:  5,
		SplitTTL:       16,
		MaxTTL:         32,
		Gap:            5,
		ProbingRate:    400000,
		DstPort:        33434,
		SrcPort:        53,
		PayloadMessage: "How are you?",
	}
}

// Validate checks cross-field constraints that target generation and the
// DCB lifecycle both rely on.
func (o Options) Validate() error {
	if o.Targets == "" {
		return fmt.Errorf("targets is required")
	}
	if o.Grain > 32 {
		return fmt.Errorf("grain must be in [0, 32], got %d", o.Grain)
	}
	if o.SplitTTL == 0 || o.SplitTTL > o.MaxTTL {
		return fmt.Errorf("split_ttl must be in [1, max_ttl=%d], got %d", o.MaxTTL, o.SplitTTL)
	}
	if o.DstPort == 0 {
		return fmt.Errorf("dst_port must be nonzero")
	}
	return nil
}

// DefaultFile returns a File populated with Default() and an empty alias
// table, mirroring the original project's DefaultConfig.
func DefaultFile() *File {
	return &File{Defaults: Default(), Aliases: make(map[string]string)}
}

// Load searches the default config file locations, in order:
//  1. ./flashtrace.yaml (current directory)
//  2. ~/.config/flashtrace/config.yaml (Linux/macOS)
//  3. %APPDATA%\flashtrace\config.yaml (Windows)
//
// If none exist, it returns DefaultFile().
func Load() (*File, error) {
	for _, path := range searchPaths() {
		if _, err := os.Stat(path); err == nil {
			return LoadFrom(path)
		}
	}
	return DefaultFile(), nil
}

// LoadFrom reads a File from a specific path, starting from defaults so
// partially-specified files still produce valid Options.
func LoadFrom(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	f := DefaultFile()
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Save writes f to the default user config path.
func (f *File) Save() error {
	return f.SaveTo(userConfigPath())
}

// SaveTo writes f to a specific path, creating parent directories as
// needed.
func (f *File) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func searchPaths() []string {
	paths := []string{
		"flashtrace.yaml",
		"flashtrace.yml",
		".flashtrace.yaml",
		".flashtrace.yml",
	}
	if p := userConfigPath(); p != "" {
		paths = append(paths, p)
	}
	return paths
}

func userConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "flashtrace", "config.yaml")
		}
	default:
		home, err := os.UserHomeDir()
		if err == nil {
			if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
				return filepath.Join(xdg, "flashtrace", "config.yaml")
			}
			return filepath.Join(home, ".config", "flashtrace", "config.yaml")
		}
	}
	return ""
}

// GetConfigPath returns the path where the user config would be saved.
func GetConfigPath() string {
	return userConfigPath()
}

// GenerateExample returns example configuration file content for `flashtrace
// config init`-style commands.
func GenerateExample() string {
	return `# flashtrace configuration file
# Location: ~/.config/flashtrace/config.yaml (Linux/macOS)
#           %APPDATA%\flashtrace\config.yaml (Windows)
#           ./flashtrace.yaml (current directory)

defaults:
  targets: 0.0.0.0/0
  grain: 8
  global_only: false
  allow_private: false
  seed: 114514

  preprobing_ttl: 32
  proximity_span: 5
  split_ttl: 16
  max_ttl: 32
  gap: 5

  probing_rate: 400000

  dst_port: 33434
  src_port: 53
  salt: 0
  payload_message: "How are you?"

  dry_run: false
  two: false

  interface: ""

# Target aliases (optional)
aliases:
  googledns: 8.8.8.0/24
  cloudflare: 1.1.1.0/24
`
}
