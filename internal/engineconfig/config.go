// Package engineconfig loads the engine's typed configuration: callback
// concurrency and the minimum supported protocol version, which feed a
// syncengine.ContextConfig, plus a list of default system properties. It
// is loaded
// independently of, and earlier than, any CLI-facing Viper configuration
// in cmd/syncctl.
package engineconfig

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/brettsam/offlinesync/internal/syncengine"
)

// Config is the engine's own configuration, distinct from any per-command
// CLI flags.
type Config struct {
	// CallbackConcurrency bounds syncengine's callback executor. Zero
	// means "use the engine's default".
	CallbackConcurrency int `toml:"callback_concurrency"`

	// MinSupportedProtocolVersion overrides
	// syncengine.MinSupportedProtocolVersion for this process.
	MinSupportedProtocolVersion string `toml:"min_supported_protocol_version"`

	// DefaultSystemProperties lists system property names. Values are the
	// syncengine.SystemProperty names: "version", "createdAt",
	// "updatedAt", "deleted". SystemProperties parses the list into a set;
	// syncengine.ContextConfig has no field for it, and nothing in this
	// module passes it to a DataSource.
	DefaultSystemProperties []string `toml:"default_system_properties"`
}

// DefaultConfig returns the configuration used when no file is present,
// mirroring the daemon.DefaultConfig() idiom: a single function the
// embedder can call to get usable zero-setup defaults.
func DefaultConfig() Config {
	return Config{
		CallbackConcurrency:         0,
		MinSupportedProtocolVersion: syncengine.MinSupportedProtocolVersion,
		DefaultSystemProperties:     []string{string(syncengine.SystemPropertyVersion)},
	}
}

// Load reads a TOML file at path and layers it over DefaultConfig. A
// missing file is not an error; Load returns the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode engine config %s: %w", path, err)
	}
	return cfg, nil
}

// SystemProperties parses DefaultSystemProperties into a
// syncengine.SystemPropertySet.
func (c Config) SystemProperties() syncengine.SystemPropertySet {
	props := make([]syncengine.SystemProperty, 0, len(c.DefaultSystemProperties))
	for _, name := range c.DefaultSystemProperties {
		props = append(props, syncengine.SystemProperty(name))
	}
	return syncengine.NewSystemPropertySet(props...)
}
