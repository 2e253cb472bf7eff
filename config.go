package siesta

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v2"
)

// Config is the ambient, transport-level configuration of a Server. It has
// no spec-level component of its own; it parameterizes C3 (body cap,
// timeouts, DispatchAsync) and C7 (logging).
type Config struct {
	// ReadTimeout is the maximum duration for reading the entire
	// request, including the body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// MaxBodyBytes caps how much of a request body the dispatcher will
	// collect before handing it to a Handler (spec §5, "bounded body
	// collection limit"). Default is 128 KiB, matching the original
	// implementation's fixed collection limit.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`

	// DispatchAsync runs each Handler on its own goroutine instead of
	// the connection's serving goroutine, while still writing responses
	// back in the order their requests were dispatched on a given
	// connection (spec §9, "Handler re-entrancy").
	DispatchAsync bool `mapstructure:"dispatch_async"`

	// Logger receives text log lines about handler errors, serve errors and
	// opened WebSocket connections. The default writes to os.Stderr at
	// LevelInfo; WithLogger(nil) keeps that default.
	Logger *Logger `mapstructure:"-"`

	// ProxyEnabled makes the listener unwrap PROXY protocol v1/v2 headers
	// before handing a connection to the HTTP server, so RemoteAddr
	// reflects the original client behind a load balancer.
	ProxyEnabled bool `mapstructure:"proxy_enabled"`

	// ProxyReadHeaderTimeout bounds how long the listener waits for a
	// PROXY protocol header before giving up and treating the connection
	// as not using the protocol.
	ProxyReadHeaderTimeout time.Duration `mapstructure:"proxy_read_header_timeout"`

	// ProxyRelayerIPWhitelist restricts PROXY protocol unwrapping to
	// connections arriving from these CIDRs or IPs. An empty whitelist
	// means every connection is eligible.
	ProxyRelayerIPWhitelist []string `mapstructure:"proxy_relayer_ip_whitelist"`
}

// ConfigOption mutates a Config at Server construction time.
type ConfigOption func(*Config)

func defaultConfig() Config {
	return Config{
		ReadTimeout:   30 * time.Second,
		WriteTimeout:  30 * time.Second,
		IdleTimeout:   2 * time.Minute,
		MaxBodyBytes:  128 * 1024,
		DispatchAsync: false,
		Logger:        NewLogger(LevelInfo),
	}
}

// WithReadTimeout overrides the default read timeout.
func WithReadTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.ReadTimeout = d }
}

// WithWriteTimeout overrides the default write timeout.
func WithWriteTimeout(d time.Duration) ConfigOption {
	return func(c *Config) { c.WriteTimeout = d }
}

// WithMaxBodyBytes overrides the default request body collection cap.
func WithMaxBodyBytes(n int64) ConfigOption {
	return func(c *Config) { c.MaxBodyBytes = n }
}

// WithDispatchAsync enables or disables off-thread handler execution.
func WithDispatchAsync(enabled bool) ConfigOption {
	return func(c *Config) { c.DispatchAsync = enabled }
}

// WithLogger installs a custom Logger.
func WithLogger(l *Logger) ConfigOption {
	return func(c *Config) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithConfigFile loads JSON, TOML, or YAML (picked by file extension) over
// the current Config, the way the teacher's own Serve loads a ConfigFile
// (decoded through mapstructure so duration and int fields parse from their
// textual config keys without a hand-written switch per field).
func WithConfigFile(path string) ConfigOption {
	return func(c *Config) {
		b, err := ioutil.ReadFile(path)
		if err != nil {
			return
		}

		m := map[string]interface{}{}
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".json":
			err = json.Unmarshal(b, &m)
		case ".toml":
			err = toml.Unmarshal(b, &m)
		case ".yaml", ".yml":
			err = yaml.Unmarshal(b, &m)
		default:
			err = fmt.Errorf("siesta: unsupported config file extension %q", ext)
		}
		if err != nil {
			return
		}

		mapstructure.Decode(m, c)
	}
}
