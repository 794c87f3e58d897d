// Package sync implements the Pts Manager, Commit Applier, Sync Engine,
// and Entity Sync Engine (spec §4.5-§4.6); the Bootstrap Orchestrator
// (spec §4.7) that drives them lives in internal/bootstrap. The
// pts-ordered message sync and the cursor-ordered entity sync are
// orthogonal engines sharing only the Storage and RPC Router
// collaborators, exactly as spec §4.6 describes them.
package sync

import (
	"context"
	"sync"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
)

// channelKey identifies a channel for the pts cache.
type channelKey struct {
	ChannelID   uint64
	ChannelType model.ChannelType
}

// ChannelStore is the subset of *storage.Store the Pts Manager needs.
type ChannelStore interface {
	GetChannel(ctx context.Context, channelID uint64, channelType model.ChannelType) (*model.Channel, error)
	SetChannelPts(ctx context.Context, channelID uint64, channelType model.ChannelType, pts uint64) error
}

// PtsManager maps (channel_id, channel_type) -> local_pts, cache-through
// from the channel row's last_msg_pts (spec §4.5). The cache is a plain
// map guarded by a single RWMutex shared by all keys.
type PtsManager struct {
	store ChannelStore

	mu    sync.RWMutex
	cache map[channelKey]uint64
}

func NewPtsManager(store ChannelStore) *PtsManager {
	return &PtsManager{store: store, cache: make(map[channelKey]uint64)}
}

// LocalPts returns the cached pts for a channel, reading through to
// storage on a cache miss.
func (p *PtsManager) LocalPts(ctx context.Context, channelID uint64, channelType model.ChannelType) (uint64, error) {
	key := channelKey{channelID, channelType}

	p.mu.RLock()
	pts, ok := p.cache[key]
	p.mu.RUnlock()
	if ok {
		return pts, nil
	}

	ch, err := p.store.GetChannel(ctx, channelID, channelType)
	if err != nil {
		return 0, err
	}
	if ch != nil {
		pts = ch.LastMsgPts
	}

	p.mu.Lock()
	p.cache[key] = pts
	p.mu.Unlock()
	return pts, nil
}

// SetPts updates the cache and the channel row atomically (spec §4.5:
// "Writes update cache and row atomically").
func (p *PtsManager) SetPts(ctx context.Context, channelID uint64, channelType model.ChannelType, pts uint64) error {
	key := channelKey{channelID, channelType}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.SetChannelPts(ctx, channelID, channelType, pts); err != nil {
		return err
	}
	p.cache[key] = pts
	return nil
}

// HasGap implements spec §4.5: has_gap(channel, server_pts) ===
// server_pts > local_pts + 1.
func (p *PtsManager) HasGap(ctx context.Context, channelID uint64, channelType model.ChannelType, serverPts uint64) (bool, error) {
	local, err := p.LocalPts(ctx, channelID, channelType)
	if err != nil {
		return false, err
	}
	return serverPts > local+1, nil
}
