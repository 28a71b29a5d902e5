package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentx-labs/unitcore/internal/branding"
	"github.com/spf13/viper"
)

const (
	fileName = "config"
	fileType = "yaml"
)

// Configuration keys.
const (
	KeyRules          = "rules"
	KeyStatusDir      = "status_dir"
	KeyCacheDir       = "cache_dir"
	KeyInstallRoots   = "install_roots"
	KeyBootRoots      = "boot_roots"
	KeyStartupPath    = "startup_path"
	KeyBootDelegation = "boot_delegation"
	KeyFirstWins      = "first_wins"
	KeyDebounce       = "debounce"
	KeyHostUnit       = "host_unit"
	KeyHostPrefix     = "host_prefix"
	KeyCoreBundles    = "core_bundles"
)

// DefaultDebounce is the delay used to coalesce status folder notifications.
const DefaultDebounce = 500 * time.Millisecond

// CoreBundle describes a host-internal startup path entry that only kosher
// units may see.
type CoreBundle struct {
	Path     string   `mapstructure:"path" yaml:"path"`
	Owner    string   `mapstructure:"owner" yaml:"owner"`
	Packages []string `mapstructure:"packages" yaml:"packages"`
}

// Settings is the resolved configuration consumed by the host.
type Settings struct {
	Rules          []string
	StatusDir      string
	CacheDir       string
	InstallRoots   []string
	BootRoots      []string
	StartupPath    []string
	BootDelegation []string
	FirstWins      bool
	Debounce       time.Duration
	HostUnit       string
	HostPrefix     string
	CoreBundles    []CoreBundle
}

// Dir returns the path to the UnitCore home directory. UNITCORE_HOME wins
// over ~/.unitcore.
func Dir() string {
	if v := os.Getenv(branding.EnvVar("HOME")); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", branding.HomeDir())
	}
	return filepath.Join(home, branding.HomeDir())
}

// statusDir returns the default status folder. UNITCORE_STATUS wins over
// <home>/status.
func statusDir() string {
	if v := os.Getenv(branding.EnvVar("STATUS")); v != "" {
		return v
	}
	return filepath.Join(Dir(), "status")
}

// FilePath returns the full path to the config file (~/.unitcore/config.yaml).
func FilePath() string {
	return filepath.Join(Dir(), fileName+"."+fileType)
}

// EnsureDir creates the config directory if it does not exist.
func EnsureDir() error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return nil
}

// Load initializes Viper to read from the config file and environment.
func Load() {
	viper.SetConfigFile(FilePath())
	viper.SetConfigType(fileType)
	viper.SetEnvPrefix(branding.EnvPrefix())
	viper.AutomaticEnv()

	setDefaults()

	// Ignore error if config file doesn't exist yet.
	_ = viper.ReadInConfig()
}

func setDefaults() {
	dir := Dir()
	viper.SetDefault(KeyRules, []string{filepath.Join(dir, "rules")})
	viper.SetDefault(KeyStatusDir, statusDir())
	viper.SetDefault(KeyCacheDir, filepath.Join(dir, "cache"))
	viper.SetDefault(KeyInstallRoots, []string{dir})
	viper.SetDefault(KeyDebounce, DefaultDebounce)
	viper.SetDefault(KeyHostUnit, "org.unitcore.core")
	viper.SetDefault(KeyHostPrefix, "org/unitcore/core/")
}

// Get returns a config value by key. Returns empty string if not set.
func Get(key string) string {
	return viper.GetString(key)
}

// Value returns the raw value of a key, whatever its type.
func Value(key string) interface{} {
	return viper.Get(key)
}

// AllKeys returns every key known to the configuration, sorted by viper.
func AllKeys() []string {
	return viper.AllKeys()
}

// Set writes a config key-value pair and saves the config file.
func Set(key, value string) error {
	if err := EnsureDir(); err != nil {
		return err
	}

	viper.Set(key, value)

	configFile := FilePath()

	// Create the file if it doesn't exist.
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("creating config file %s: %w", configFile, err)
		}
		f.Close()
	}

	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Resolve reads the loaded configuration into Settings. Load must have been
// called first.
func Resolve() (*Settings, error) {
	s := &Settings{
		Rules:          viper.GetStringSlice(KeyRules),
		StatusDir:      viper.GetString(KeyStatusDir),
		CacheDir:       viper.GetString(KeyCacheDir),
		InstallRoots:   viper.GetStringSlice(KeyInstallRoots),
		BootRoots:      viper.GetStringSlice(KeyBootRoots),
		StartupPath:    viper.GetStringSlice(KeyStartupPath),
		BootDelegation: viper.GetStringSlice(KeyBootDelegation),
		FirstWins:      viper.GetBool(KeyFirstWins),
		Debounce:       viper.GetDuration(KeyDebounce),
		HostUnit:       viper.GetString(KeyHostUnit),
		HostPrefix:     viper.GetString(KeyHostPrefix),
	}
	if err := viper.UnmarshalKey(KeyCoreBundles, &s.CoreBundles); err != nil {
		return nil, fmt.Errorf("reading %s: %w", KeyCoreBundles, err)
	}
	if s.StatusDir == "" {
		return nil, fmt.Errorf("%s must not be empty", KeyStatusDir)
	}
	if s.Debounce <= 0 {
		s.Debounce = DefaultDebounce
	}
	return s, nil
}
