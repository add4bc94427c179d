package canopy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"
)

// Config is the ambient, file-loadable configuration surface layered on
// top of the programmatic Group tree: process-wide logging, worker pool
// sizing, and the defaults applied to every Endpoint that doesn't
// override them (mirroring air.go's mapstructure-tagged Config).
type Config struct {
	AppName string `mapstructure:"app_name"`

	LogEnabled bool   `mapstructure:"log_enabled"`
	LogFormat  string `mapstructure:"log_format"`

	// WorkerPoolSize is the fixed worker pool size (spec.md §5). 0 means
	// hardware parallelism.
	WorkerPoolSize int `mapstructure:"worker_pool_size"`

	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"`

	// GracePeriod bounds how long Server.Stop waits for in-flight
	// requests to drain (SPEC_FULL.md's supplemented graceful-drain
	// feature). Connections still active when it expires are not
	// force-closed.
	GracePeriod time.Duration `mapstructure:"grace_period"`

	ProxyEnabled            bool          `mapstructure:"proxy_enabled"`
	ProxyReadHeaderTimeout  time.Duration `mapstructure:"proxy_read_header_timeout"`
	ProxyRelayerIPWhitelist []string      `mapstructure:"proxy_relayer_ip_whitelist"`

	ACMEEnabled       bool     `mapstructure:"acme_enabled"`
	ACMECertRoot      string   `mapstructure:"acme_cert_root"`
	ACMEHostWhitelist []string `mapstructure:"acme_host_whitelist"`

	WebSocketHandshakeTimeout time.Duration `mapstructure:"websocket_handshake_timeout"`
	WebSocketSubprotocols     []string      `mapstructure:"websocket_subprotocols"`

	FileCacheMaxMemoryBytes int  `mapstructure:"filecache_max_memory_bytes"`
	MinifierEnabled         bool `mapstructure:"minifier_enabled"`
}

// DefaultConfig is the identity element for LoadConfig: every zero-value
// field above already has a sane runtime meaning (no timeout, hardware-
// parallel pool, etc.), so DefaultConfig only needs to fill in the
// fields whose zero value is not the right default.
func DefaultConfig(appName string) Config {
	return Config{
		AppName:                 appName,
		LogEnabled:              true,
		FileCacheMaxMemoryBytes: 32 * 1024 * 1024,
	}
}

// LoadConfig reads a TOML, YAML, or INI file (chosen by extension) into a
// copy of base, the way air.go's Serve method loads a.ConfigFile, but
// exposed as a pure function rather than a side effect of starting the
// server.
func LoadConfig(base Config, path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}

	m := map[string]any{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(b, &m)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &m)
	case ".ini":
		m, err = loadINI(b)
	default:
		err = fmt.Errorf("canopy: unsupported configuration file extension: %s", ext)
	}
	if err != nil {
		return base, err
	}

	cfg := base
	if err := mapstructure.Decode(m, &cfg); err != nil {
		return base, err
	}
	return cfg, nil
}

func loadINI(b []byte) (map[string]any, error) {
	f, err := ini.Load(b)
	if err != nil {
		return nil, err
	}

	out := map[string]any{}
	for _, key := range f.Section("").Keys() {
		out[key.Name()] = key.Value()
	}
	return out, nil
}
