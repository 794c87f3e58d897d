// Package config implements the SDK's plain Config structure and its
// builder (spec §9: "Builder with optional, mostly-unrelated fields...
// validation happens in build() and is the only place errors are
// reported"), plus file/env loading via spf13/viper and spf13/pflag and
// optional hot-reload via fsnotify — all direct teacher dependencies,
// used here exactly as cmd/cmd.go's config.LoadConfig() pattern.
package config

import (
	"time"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

// Config is the fully validated, internal configuration the SDK facade
// builds every collaborator from. It has no optional fields left
// unresolved — ConfigBuilder.Build() is the only place defaults are
// applied and errors are reported.
type Config struct {
	DataRoot     string
	MasterSecret []byte

	Endpoints         []model.Endpoint
	ConnectTimeout    time.Duration
	HeartbeatInterval time.Duration
	RPCTimeout        time.Duration

	SendQueueWorkers int
	FileQueueWorkers int

	PresenceCacheSize int
	PresenceCacheTTL  time.Duration

	TypingDebounceWindow time.Duration
	TypingAutoClear      time.Duration

	MediaBaseURL string // base URL the File Send Queue's Uploader posts attachments to
}

func (c Config) withDefaults() Config {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.RPCTimeout <= 0 {
		c.RPCTimeout = 30 * time.Second
	}
	if c.SendQueueWorkers <= 0 {
		c.SendQueueWorkers = 4
	}
	if c.FileQueueWorkers < 2 || c.FileQueueWorkers > 3 {
		c.FileQueueWorkers = 3
	}
	if c.PresenceCacheSize <= 0 {
		c.PresenceCacheSize = 10_000
	}
	if c.PresenceCacheTTL <= 0 {
		c.PresenceCacheTTL = 300 * time.Second
	}
	if c.TypingDebounceWindow <= 0 {
		c.TypingDebounceWindow = 3 * time.Second
	}
	if c.TypingAutoClear <= 0 {
		c.TypingAutoClear = 5 * time.Second
	}
	return c
}

// Builder accumulates optional, mostly-unrelated fields and produces a
// validated Config only in Build().
type Builder struct {
	cfg Config
	err error
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) DataDir(dir string) *Builder {
	b.cfg.DataRoot = dir
	return b
}

func (b *Builder) MasterSecret(secret []byte) *Builder {
	b.cfg.MasterSecret = secret
	return b
}

// ServerURL parses raw as an endpoint ({scheme}://{host}[:{port}][/{path}],
// spec §8 round-trip property) and appends it to the candidate list in
// call order, matching spec §4.1's "Connection Manager iterates endpoints
// in order".
func (b *Builder) ServerURL(raw string) *Builder {
	ep, err := model.ParseEndpoint(raw)
	if err != nil {
		if b.err == nil {
			b.err = err
		}
		return b
	}
	b.cfg.Endpoints = append(b.cfg.Endpoints, ep)
	return b
}

func (b *Builder) ConnectTimeout(d time.Duration) *Builder {
	b.cfg.ConnectTimeout = d
	return b
}

func (b *Builder) HeartbeatInterval(d time.Duration) *Builder {
	b.cfg.HeartbeatInterval = d
	return b
}

func (b *Builder) RPCTimeout(d time.Duration) *Builder {
	b.cfg.RPCTimeout = d
	return b
}

func (b *Builder) SendQueueWorkers(n int) *Builder {
	b.cfg.SendQueueWorkers = n
	return b
}

// FileQueueWorkers resolves spec §9's open question: the file-send worker
// count (spec's "2-3") is exposed as explicit, validated configuration
// rather than a hidden constant.
func (b *Builder) FileQueueWorkers(n int) *Builder {
	b.cfg.FileQueueWorkers = n
	return b
}

func (b *Builder) PresenceCache(size int, ttl time.Duration) *Builder {
	b.cfg.PresenceCacheSize = size
	b.cfg.PresenceCacheTTL = ttl
	return b
}

func (b *Builder) TypingWindows(debounce, autoClear time.Duration) *Builder {
	b.cfg.TypingDebounceWindow = debounce
	b.cfg.TypingAutoClear = autoClear
	return b
}

func (b *Builder) MediaBaseURL(url string) *Builder {
	b.cfg.MediaBaseURL = url
	return b
}

// Build validates the accumulated fields and applies defaults; it is the
// only place a ConfigBuilder reports an error (spec §9).
func (b *Builder) Build() (*Config, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.cfg.DataRoot == "" {
		return nil, ierr.NewInvalidParameter("data_dir", "data directory is required")
	}
	if len(b.cfg.Endpoints) == 0 {
		return nil, ierr.NewInvalidParameter("endpoints", "endpoint list must not be empty")
	}
	if b.cfg.FileQueueWorkers != 0 && (b.cfg.FileQueueWorkers < 2 || b.cfg.FileQueueWorkers > 3) {
		return nil, ierr.NewInvalidParameter("file_queue_workers", "must be 2 or 3")
	}

	cfg := b.cfg.withDefaults()
	return &cfg, nil
}
