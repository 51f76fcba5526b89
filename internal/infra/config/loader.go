// Package config resolves inspector settings from defaults, an optional
// YAML file, INSPECTOR_* environment variables and explicitly set CLI flags.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"webmcp-inspector/internal/domain"
)

const envPrefix = "INSPECTOR"

type Config struct {
	Transport     string
	HTTP          HTTPConfig
	CDP           CDPConfig
	Browser       BrowserConfig
	Extension     ExtensionConfig
	Observability ObservabilityConfig
}

type HTTPConfig struct {
	Addr string
	Path string
}

type CDPConfig struct {
	Enabled bool
	Host    string
	Port    int
}

type BrowserConfig struct {
	Launch   bool
	Channel  string
	Headless bool
	URL      string
}

type ExtensionConfig struct {
	Enabled     bool
	WSPort      int
	Meta        bool
	CallTimeout time.Duration
}

type ObservabilityConfig struct {
	Enabled       bool
	ListenAddress string
}

// BrowserSourceConfig maps the CDP and browser sections onto a source config.
func (c Config) BrowserSourceConfig() domain.SourceConfig {
	return domain.SourceConfig{
		Host:     c.CDP.Host,
		Port:     c.CDP.Port,
		Launch:   c.Browser.Launch,
		Channel:  c.Browser.Channel,
		Headless: c.Browser.Headless,
		URL:      c.Browser.URL,
	}
}

// ExtensionSourceConfig maps the extension section onto a source config.
func (c Config) ExtensionSourceConfig() domain.SourceConfig {
	return domain.SourceConfig{WSPort: c.Extension.WSPort}
}

type rawConfig struct {
	Transport     string                 `mapstructure:"transport"`
	HTTP          rawHTTPConfig          `mapstructure:"http"`
	CDP           rawCDPConfig           `mapstructure:"cdp"`
	Browser       rawBrowserConfig       `mapstructure:"browser"`
	Extension     rawExtensionConfig     `mapstructure:"extension"`
	Observability rawObservabilityConfig `mapstructure:"observability"`
}

type rawHTTPConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

type rawCDPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

type rawBrowserConfig struct {
	Launch   bool   `mapstructure:"launch"`
	Channel  string `mapstructure:"channel"`
	Headless bool   `mapstructure:"headless"`
	URL      string `mapstructure:"url"`
}

type rawExtensionConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	WSPort             int  `mapstructure:"wsPort"`
	Meta               bool `mapstructure:"meta"`
	CallTimeoutSeconds int  `mapstructure:"callTimeoutSeconds"`
}

type rawObservabilityConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ListenAddress string `mapstructure:"listenAddress"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport", domain.DefaultTransport)
	v.SetDefault("http.addr", domain.DefaultHTTPAddr)
	v.SetDefault("http.path", domain.DefaultHTTPPath)
	v.SetDefault("cdp.enabled", true)
	v.SetDefault("cdp.host", domain.DefaultCDPHost)
	v.SetDefault("cdp.port", domain.DefaultCDPPort)
	v.SetDefault("browser.launch", false)
	v.SetDefault("browser.channel", domain.DefaultBrowserChannel)
	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.url", "")
	v.SetDefault("extension.enabled", false)
	v.SetDefault("extension.wsPort", domain.DefaultExtensionWSPort)
	v.SetDefault("extension.meta", false)
	v.SetDefault("extension.callTimeoutSeconds", int(domain.DefaultExtensionCallTimeout/time.Second))
	v.SetDefault("observability.enabled", false)
	v.SetDefault("observability.listenAddress", domain.DefaultObservabilityListenAddress)
}

// LoadOptions selects the inputs layered over the defaults.
type LoadOptions struct {
	// Path is an optional YAML file.
	Path string
	// Flags and Bindings map config keys to flag names. A bound flag
	// overrides the file and environment only when it was set explicitly.
	Flags    *pflag.FlagSet
	Bindings map[string]string
	// Overrides win over every other layer.
	Overrides map[string]any
}

type Loader struct {
	logger *zap.Logger
}

func NewLoader(logger *zap.Logger) *Loader {
	if logger == nil {
		return &Loader{logger: zap.NewNop()}
	}
	return &Loader{logger: logger.Named("config")}
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	cfg, _ := NewLoader(nil).Load(context.Background(), LoadOptions{})
	return cfg
}

func (l *Loader) Load(ctx context.Context, opts LoadOptions) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.Path != "" {
		data, err := os.ReadFile(opts.Path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		expander := newEnvExpander()
		expanded, err := expander.Expand(data)
		if err != nil {
			return Config{}, err
		}
		if missing := expander.Missing(); len(missing) > 0 {
			l.logger.Warn("missing environment variables in config", zap.String("path", opts.Path), zap.Strings("missing", missing))
		}
		if err := v.ReadConfig(bytes.NewBufferString(expanded)); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	if opts.Flags != nil {
		for key, name := range opts.Bindings {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				return Config{}, fmt.Errorf("bind flag %q: not defined", name)
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %q: %w", name, err)
			}
		}
	}

	for key, value := range opts.Overrides {
		v.Set(key, value)
	}

	var raw rawConfig
	if err := v.Unmarshal(&raw); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Config{}, err
	}

	cfg := normalize(raw)
	if errs := validate(cfg); len(errs) > 0 {
		return Config{}, errors.New(strings.Join(errs, "; "))
	}
	return cfg, nil
}

func normalize(raw rawConfig) Config {
	path := strings.TrimSpace(raw.HTTP.Path)
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return Config{
		Transport: strings.ToLower(strings.TrimSpace(raw.Transport)),
		HTTP: HTTPConfig{
			Addr: strings.TrimSpace(raw.HTTP.Addr),
			Path: path,
		},
		CDP: CDPConfig{
			Enabled: raw.CDP.Enabled,
			Host:    strings.TrimSpace(raw.CDP.Host),
			Port:    raw.CDP.Port,
		},
		Browser: BrowserConfig{
			Launch:   raw.Browser.Launch,
			Channel:  strings.TrimSpace(raw.Browser.Channel),
			Headless: raw.Browser.Headless,
			URL:      strings.TrimSpace(raw.Browser.URL),
		},
		Extension: ExtensionConfig{
			Enabled:     raw.Extension.Enabled,
			WSPort:      raw.Extension.WSPort,
			Meta:        raw.Extension.Meta,
			CallTimeout: time.Duration(raw.Extension.CallTimeoutSeconds) * time.Second,
		},
		Observability: ObservabilityConfig{
			Enabled:       raw.Observability.Enabled,
			ListenAddress: strings.TrimSpace(raw.Observability.ListenAddress),
		},
	}
}

func validate(cfg Config) []string {
	var errs []string
	switch cfg.Transport {
	case domain.TransportStdio:
	case domain.TransportStreamableHTTP:
		if cfg.HTTP.Addr == "" {
			errs = append(errs, "http.addr is required for streamable-http transport")
		}
		if cfg.HTTP.Path == "" {
			errs = append(errs, "http.path is required for streamable-http transport")
		}
	default:
		errs = append(errs, fmt.Sprintf("transport must be %q or %q, got %q", domain.TransportStdio, domain.TransportStreamableHTTP, cfg.Transport))
	}
	if cfg.CDP.Enabled && !cfg.Browser.Launch {
		if cfg.CDP.Host == "" {
			errs = append(errs, "cdp.host is required")
		}
		if cfg.CDP.Port <= 0 || cfg.CDP.Port > 65535 {
			errs = append(errs, fmt.Sprintf("cdp.port must be in 1-65535, got %d", cfg.CDP.Port))
		}
	}
	if cfg.Browser.Launch && cfg.Browser.Channel == "" {
		errs = append(errs, "browser.channel is required when browser.launch is set")
	}
	if cfg.Extension.Enabled {
		if cfg.Extension.WSPort < 0 || cfg.Extension.WSPort > 65535 {
			errs = append(errs, fmt.Sprintf("extension.wsPort must be in 0-65535, got %d", cfg.Extension.WSPort))
		}
		if cfg.Extension.CallTimeout <= 0 {
			errs = append(errs, "extension.callTimeoutSeconds must be > 0")
		}
	}
	if cfg.Observability.Enabled && cfg.Observability.ListenAddress == "" {
		errs = append(errs, "observability.listenAddress is required when observability is enabled")
	}
	return errs
}
