package app

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/johngerving/dental-chat.git/pkg/chat"
	"github.com/johngerving/dental-chat.git/pkg/handler"
)

// Config holds the settings the app is started with. It is read once at
// startup and passed to constructors.
type Config struct {
	// APIBase is the chat backend base URL. Empty means same origin: the
	// client posts to this server's /api/chat/, which is proxied to APIUpstream.
	APIBase string
	// APIUpstream is where /api/* is forwarded when APIBase is empty.
	APIUpstream string
	ListenAddr  string
	DefaultFlow chat.Flow
	// StreamTTL is how long a finished reply stream is kept for replay.
	StreamTTL time.Duration
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		APIBase:     "",
		APIUpstream: "http://localhost:8000",
		ListenAddr:  ":8080",
		DefaultFlow: chat.FlowGeneralInfo,
		StreamTTL:   handler.DefaultStreamTTL,
	}
}

// NewViper returns a viper instance with defaults registered and environment
// variables bound under the CHAT_ prefix (CHAT_API_BASE, CHAT_LISTEN_ADDR, ...).
func NewViper() *viper.Viper {
	v := viper.New()

	d := Defaults()
	v.SetDefault("api_base", d.APIBase)
	v.SetDefault("api_upstream", d.APIUpstream)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("default_flow", string(d.DefaultFlow))
	v.SetDefault("stream_ttl", d.StreamTTL)

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// BindFlags binds command line flags onto their config keys. Flags win over
// environment variables.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for key, name := range map[string]string{
		"api_base":     "api-base",
		"api_upstream": "api-upstream",
		"listen_addr":  "addr",
		"default_flow": "flow",
		"stream_ttl":   "stream-ttl",
	} {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %q: %w", name, err)
		}
	}
	return nil
}

// LoadConfig reads the resolved settings out of v.
func LoadConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		APIBase:     strings.TrimSpace(v.GetString("api_base")),
		APIUpstream: strings.TrimSpace(v.GetString("api_upstream")),
		ListenAddr:  strings.TrimSpace(v.GetString("listen_addr")),
		DefaultFlow: chat.Flow(strings.TrimSpace(v.GetString("default_flow"))),
		StreamTTL:   v.GetDuration("stream_ttl"),
	}
	if cfg.ListenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if cfg.APIBase == "" {
		if cfg.APIUpstream == "" {
			return Config{}, fmt.Errorf("api_upstream must be set when api_base is empty")
		}
		if _, err := parseUpstream(cfg.APIUpstream); err != nil {
			return Config{}, err
		}
	}
	if cfg.DefaultFlow == "" {
		cfg.DefaultFlow = chat.FlowGeneralInfo
	}
	if cfg.StreamTTL <= 0 {
		cfg.StreamTTL = handler.DefaultStreamTTL
	}
	return cfg, nil
}

func parseUpstream(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid api_upstream %q: %w", raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("invalid api_upstream %q: must be an absolute URL", raw)
	}
	return u, nil
}
