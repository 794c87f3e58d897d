package config

import (
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileConfig is the on-disk/env shape consumed by LoadConfig, separate
// from the validated internal Config so viper's untyped defaults never
// leak past the single Builder.Build() validation point (spec §9).
type FileConfig struct {
	DataDir       string   `mapstructure:"data_dir"`
	ServerURLs    []string `mapstructure:"server_urls"`
	ConnectTimeoutSecs    int `mapstructure:"connect_timeout_secs"`
	HeartbeatIntervalSecs int `mapstructure:"heartbeat_interval_secs"`
	RPCTimeoutSecs        int `mapstructure:"rpc_timeout_secs"`
	SendQueueWorkers int `mapstructure:"send_queue_workers"`
	FileQueueWorkers int `mapstructure:"file_queue_workers"`
	MediaBaseURL     string `mapstructure:"media_base_url"`
}

// RegisterFlags defines the config_file, data_dir and server_urls flags on
// flags; LoadConfig binds that set into viper before reading.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config_file", "", "Path to the configuration file")
	flags.String("data_dir", "", "SDK data directory")
	flags.StringSlice("server_urls", nil, "Ordered candidate server endpoints")
}

// LoadConfig reads a FileConfig via spf13/viper (file + PRIVCHAT_-prefixed
// env vars + bound pflags, in viper's usual precedence order), all direct
// teacher dependencies used the way cmd/cmd.go wires config.LoadConfig().
func LoadConfig(flags *pflag.FlagSet) (*FileConfig, *viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("PRIVCHAT")
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, nil, err
		}
	}

	if cfgFile := v.GetString("config_file"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, err
		}
	}

	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, nil, err
	}
	return &fc, v, nil
}

// ToBuilder converts a loaded FileConfig into a Builder, preserving every
// field up to Build()'s validation (spec §8 round-trip property).
func (fc *FileConfig) ToBuilder() *Builder {
	b := NewBuilder().DataDir(fc.DataDir)
	for _, u := range fc.ServerURLs {
		b = b.ServerURL(u)
	}
	if fc.ConnectTimeoutSecs > 0 {
		b = b.ConnectTimeout(time.Duration(fc.ConnectTimeoutSecs) * time.Second)
	}
	if fc.HeartbeatIntervalSecs > 0 {
		b = b.HeartbeatInterval(time.Duration(fc.HeartbeatIntervalSecs) * time.Second)
	}
	if fc.RPCTimeoutSecs > 0 {
		b = b.RPCTimeout(time.Duration(fc.RPCTimeoutSecs) * time.Second)
	}
	if fc.SendQueueWorkers > 0 {
		b = b.SendQueueWorkers(fc.SendQueueWorkers)
	}
	if fc.FileQueueWorkers > 0 {
		b = b.FileQueueWorkers(fc.FileQueueWorkers)
	}
	if fc.MediaBaseURL != "" {
		b = b.MediaBaseURL(fc.MediaBaseURL)
	}
	return b
}

// WatchEndpoints watches the config file, backed by fsnotify via viper's
// WatchConfig (a direct teacher dependency), and calls onChange with the
// re-read server_urls list on every change. It does not update any built
// Config; what happens to the new list is up to onChange.
func WatchEndpoints(log *slog.Logger, v *viper.Viper, onChange func([]string)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("config file changed, reloading server endpoints", slog.String("op", e.Op.String()))
		onChange(v.GetStringSlice("server_urls"))
	})
	v.WatchConfig()
}
