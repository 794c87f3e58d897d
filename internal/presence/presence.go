// Package presence implements the Presence Manager and Typing Manager
// (spec §4.10): a bounded online-status cache with a subscription set,
// and a debounced per-channel typing-notification tracker, backed by
// github.com/hashicorp/golang-lru/v2 the same way a bounded peer-directory
// cache would be, re-purposed here from "peer directory lookups" to
// "online-status fan-in".
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

// Status is the closed online-status enumeration (spec §4.10).
type Status int32

const (
	StatusOffline Status = iota
	StatusLastWeek
	StatusRecently
	StatusOnline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusRecently:
		return "recently"
	case StatusLastWeek:
		return "last_week"
	default:
		return "offline"
	}
}

// Entry is the cached presence record for one user (spec §4.10).
type Entry struct {
	UserID   int64
	Status   Status
	LastSeen int64
	Devices  int32
}

// Caller is the subset of *rpc.Router the Presence Manager needs to
// subscribe to a set of user ids (spec §6 presence/subscribe route).
type Caller interface {
	Call(ctx context.Context, route string, payload any, out any) error
}

// Listener receives UserPresenceChanged events (spec §4.10). The SDK
// facade wires this to its own observer surface; presence intentionally
// does not depend on internal/observer so it stays a leaf collaborator.
type Listener func(Entry)

const (
	defaultCacheSize = 10_000
	defaultCacheTTL  = 300 * time.Second
)

// Config configures cache size, TTL, and the RPC collaborator.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
	Caller    Caller
}

func (c Config) withDefaults() Config {
	if c.CacheSize <= 0 {
		c.CacheSize = defaultCacheSize
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaultCacheTTL
	}
	return c
}

// Manager holds the bounded online-status cache and subscription set
// (spec §4.10).
type Manager struct {
	log *slog.Logger
	cfg Config
	cache *lru.Cache[int64, Entry]

	mu            sync.Mutex
	subscriptions map[int64]struct{}
	listeners     []Listener

	stopCh chan struct{}
	once   sync.Once
}

func NewManager(log *slog.Logger, cfg Config) *Manager {
	cfg = cfg.withDefaults()
	cache, _ := lru.New[int64, Entry](cfg.CacheSize)
	m := &Manager{
		log:           log,
		cfg:           cfg,
		cache:         cache,
		subscriptions: make(map[int64]struct{}),
		stopCh:        make(chan struct{}),
	}
	go m.runCleanup()
	return m
}

// OnPresenceChanged registers a callback invoked on every cache update.
func (m *Manager) OnPresenceChanged(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

type subscribeRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

// Subscribe adds userIDs to the subscription set and issues
// presence/subscribe (spec §6).
func (m *Manager) Subscribe(ctx context.Context, userIDs []int64) error {
	if len(userIDs) == 0 {
		return ierr.NewInvalidParameter("user_ids", "subscribe requires at least one user id")
	}
	m.mu.Lock()
	for _, id := range userIDs {
		m.subscriptions[id] = struct{}{}
	}
	m.mu.Unlock()
	return m.cfg.Caller.Call(ctx, "presence/subscribe", subscribeRequest{UserIDs: userIDs}, nil)
}

// OnlineStatusChangeNotification is the shape the Receive Dispatcher
// forwards presence pushes in as (spec §4.10).
type OnlineStatusChangeNotification struct {
	UserID   int64  `json:"user_id"`
	Status   Status `json:"status"`
	LastSeen int64  `json:"last_seen"`
	Devices  int32  `json:"devices"`
}

// HandleNotification updates the cache and emits UserPresenceChanged.
func (m *Manager) HandleNotification(n OnlineStatusChangeNotification) {
	entry := Entry{UserID: n.UserID, Status: n.Status, LastSeen: n.LastSeen, Devices: n.Devices}
	m.cache.Add(n.UserID, entry)

	m.mu.Lock()
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()
	for _, l := range listeners {
		l(entry)
	}
}

// Get returns the cached presence for userID, if known.
func (m *Manager) Get(userID int64) (Entry, bool) {
	return m.cache.Get(userID)
}

// runCleanup flushes the entire cache at cache_ttl_secs (spec §4.10:
// "Auto-cleanup flushes the cache at cache_ttl_secs").
func (m *Manager) runCleanup() {
	ticker := time.NewTicker(m.cfg.CacheTTL)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cache.Purge()
			m.log.Debug("presence cache flushed")
		}
	}
}

func (m *Manager) Shutdown() {
	m.once.Do(func() { close(m.stopCh) })
}
