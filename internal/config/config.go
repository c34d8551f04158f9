package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/studiowebux/cartload/internal/stresstest"
	"github.com/studiowebux/cartload/internal/types"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755
)

// Environment variables
const (
	EnvMode   = "TEST_MODE"
	EnvHost   = "CARTLOAD_HOST"
	EnvConfig = "CARTLOAD_CONFIG"
)

var (
	// ConfigDir is the global configuration directory (~/.cartload)
	ConfigDir string

	// DatabasePath is the SQLite database file for configs, runs and metrics
	DatabasePath string
)

// Initialize sets up the configuration directory
// It creates ~/.cartload/ if it doesn't exist
func Initialize() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	return InitializeAt(filepath.Join(homeDir, ".cartload"))
}

// InitializeAt sets up the configuration directory at dir
func InitializeAt(dir string) error {
	ConfigDir = dir
	DatabasePath = filepath.Join(ConfigDir, "cartload.db")

	if err := os.MkdirAll(ConfigDir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", ConfigDir, err)
	}
	return nil
}

// File is the config file layout. Unset fields keep the value from the previous layer.
type File struct {
	Name              *string  `json:"name" yaml:"name"`
	Host              *string  `json:"host" yaml:"host"`
	Mode              *string  `json:"mode" yaml:"mode"`
	Users             *int     `json:"users" yaml:"users"`
	SpawnRate         *float64 `json:"spawnRate" yaml:"spawnRate"`
	DurationSec       *int     `json:"durationSec" yaml:"durationSec"`
	Iterations        *int     `json:"iterations" yaml:"iterations"`
	RequestTimeoutSec *int     `json:"requestTimeoutSec" yaml:"requestTimeoutSec"`
	ThinkMinMs        *int     `json:"thinkMinMs" yaml:"thinkMinMs"`
	ThinkMaxMs        *int     `json:"thinkMaxMs" yaml:"thinkMaxMs"`
	PoolCapacity      *int     `json:"poolCapacity" yaml:"poolCapacity"`
	MaxRPS            *float64 `json:"maxRps" yaml:"maxRps"`
	Seed              *int64   `json:"seed" yaml:"seed"`
	Weights           *Weights `json:"weights" yaml:"weights"`

	TLS         *types.TLSConfig `json:"tls" yaml:"tls"`
	MetricsAddr *string          `json:"metricsAddr" yaml:"metricsAddr"`
}

// Weights overrides the task mix
type Weights struct {
	Create *int `json:"create" yaml:"create"`
	Add    *int `json:"add" yaml:"add"`
	Get    *int `json:"get" yaml:"get"`
}

// LoadFile reads a YAML (.yaml, .yml) or JSON with comments (.json, .jsonc) config file
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	file := &File{}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, file); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), file); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (use .yaml, .yml, .json or .jsonc)", ext)
	}
	return file, nil
}

// Apply copies every set field onto config
func (f *File) Apply(config *stresstest.Config) error {
	if f.Mode != nil {
		backend, err := types.ParseBackend(*f.Mode)
		if err != nil {
			return err
		}
		config.Backend = backend
	}

	setString(&config.Name, f.Name)
	setString(&config.Host, f.Host)
	setInt(&config.Users, f.Users)
	setInt(&config.TestDurationSec, f.DurationSec)
	setInt(&config.IterationsPerUser, f.Iterations)
	setInt(&config.RequestTimeoutSec, f.RequestTimeoutSec)
	setInt(&config.ThinkMinMs, f.ThinkMinMs)
	setInt(&config.ThinkMaxMs, f.ThinkMaxMs)
	setInt(&config.PoolCapacity, f.PoolCapacity)
	if f.SpawnRate != nil {
		config.SpawnRate = *f.SpawnRate
	}
	if f.MaxRPS != nil {
		config.MaxRPS = *f.MaxRPS
	}
	if f.Seed != nil {
		config.Seed = *f.Seed
	}
	if f.Weights != nil {
		setInt(&config.CreateWeight, f.Weights.Create)
		setInt(&config.AddWeight, f.Weights.Add)
		setInt(&config.GetWeight, f.Weights.Get)
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

// ApplyEnv applies TEST_MODE and CARTLOAD_HOST when set
func ApplyEnv(config *stresstest.Config, getenv func(string) string) error {
	if mode := getenv(EnvMode); mode != "" {
		backend, err := types.ParseBackend(mode)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMode, err)
		}
		config.Backend = backend
	}
	if host := getenv(EnvHost); host != "" {
		config.Host = host
	}
	return nil
}

// ResolveFilePath returns the config file to load: the flag value, else CARTLOAD_CONFIG, else none
func ResolveFilePath(flagValue string, getenv func(string) string) string {
	if flagValue != "" {
		return flagValue
	}
	return getenv(EnvConfig)
}

// Resolved is the outcome of layering defaults, file and environment
type Resolved struct {
	Config      *stresstest.Config
	TLS         *types.TLSConfig
	MetricsAddr string
}

// Load layers defaults < config file < environment. Flags are applied by the caller.
func Load(filePath string, getenv func(string) string) (*Resolved, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	resolved := &Resolved{Config: stresstest.DefaultConfig()}

	if path := ResolveFilePath(filePath, getenv); path != "" {
		file, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		if err := file.Apply(resolved.Config); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", path, err)
		}
		resolved.TLS = file.TLS
		if file.MetricsAddr != nil {
			resolved.MetricsAddr = *file.MetricsAddr
		}
	}

	if err := ApplyEnv(resolved.Config, getenv); err != nil {
		return nil, err
	}
	return resolved, nil
}
