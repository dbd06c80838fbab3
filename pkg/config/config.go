package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "PDA"

type Configuration struct {
	ListenAddr    string
	SessionSecret string
	LogLevel      slog.Level
	MQTT          MQTTSettings
	Messenger     MessengerSettings
	Database      struct {
		User     string
		Password string
		Host     string
		DB       string
		SSLMode  string
	}
}

type MQTTSettings struct {
	ListenAddr string
	TopicRoot  string
}

type MessengerSettings struct {
	// MaxMessageLength is counted in runes.
	MaxMessageLength int
	// DedupeWindow is how long a send request ID is remembered.
	DedupeWindow time.Duration
	// Stations are created at startup so they show up before anyone logs in.
	Stations []string
}

// HasDatabase reports whether an account database is configured.
func (c *Configuration) HasDatabase() bool {
	return c.Database.Host != ""
}

// DatabaseDSN builds a postgres connection URL.
func (c *Configuration) DatabaseDSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Database.User, c.Database.Password),
		Host:   c.Database.Host,
		Path:   c.Database.DB,
	}
	q := url.Values{}
	q.Set("sslmode", c.Database.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Flags returns the command-line flags that override configuration keys.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("pda-messenger", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "path to a configuration file")
	fs.String("listen", "", "admin web listen address")
	fs.String("mqtt-listen", "", "MQTT broker listen address")
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	return fs
}

var flagKeys = map[string]string{
	"listen":      "listenaddr",
	"mqtt-listen": "mqtt.listenaddr",
	"log-level":   "loglevel",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listenaddr", "127.0.0.1:8080")
	v.SetDefault("loglevel", "info")
	v.SetDefault("mqtt.listenaddr", ":1883")
	v.SetDefault("mqtt.topicroot", "pda")
	v.SetDefault("messenger.maxmessagelength", 500)
	v.SetDefault("messenger.dedupewindow", "2m")
	v.SetDefault("messenger.stations", []string{})
	v.SetDefault("database.sslmode", "disable")
}

// LoadConfig reads the configuration file named by the --config flag, or
// config.yaml in the working directory, then applies PDA_* environment
// variables and finally any flags that were set. A missing default file
// is not an error.
func LoadConfig(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := ""
	if fs != nil {
		explicit, _ = fs.GetString("config")
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", name, err)
				}
			}
		}
	}

	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		slog.Debug("no config file found, using defaults and environment")
	}
	return v, nil
}

func ParseConfig(v *viper.Viper) (*Configuration, error) {
	var c Configuration
	err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		slog.Error("Unable to unmarshal config", "err", err)
		return nil, err
	}
	return &c, nil
}
