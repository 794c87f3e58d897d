package sync

import (
	"context"
	"log/slog"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	"github.com/privchat/privchat-sdk-go/internal/rpc"
)

// RPCCaller is the subset of *rpc.Router the Sync Engine needs.
type RPCCaller interface {
	Call(ctx context.Context, route string, payload any, out any) error
}

// Status is the outcome of a channel sync attempt (spec §4.5).
type Status int32

const (
	StatusSynced Status = iota
	StatusFailed
)

type getChannelPtsRequest struct {
	ChannelID   uint64           `json:"channel_id"`
	ChannelType model.ChannelType `json:"channel_type"`
}

type getChannelPtsResponse struct {
	Pts uint64 `json:"pts"`
}

type batchGetChannelPtsRequest struct {
	Channels []getChannelPtsRequest `json:"channels"`
}

type batchGetChannelPtsResponse struct {
	Channels []struct {
		ChannelID   uint64           `json:"channel_id"`
		ChannelType model.ChannelType `json:"channel_type"`
		Pts         uint64           `json:"pts"`
	} `json:"channels"`
}

type getDifferenceRequest struct {
	ChannelID   uint64           `json:"channel_id"`
	ChannelType model.ChannelType `json:"channel_type"`
	FromPts     uint64           `json:"from_pts"`
	ToPts       uint64           `json:"to_pts"`
}

type getDifferenceResponse struct {
	Commits []model.Commit `json:"commits"`
}

// Engine is the pts Sync Engine (spec §4.5): gap detection, get_difference,
// and ordered application via the Commit Applier.
type Engine struct {
	log     *slog.Logger
	rpc     RPCCaller
	pts     *PtsManager
	applier *CommitApplier
}

func NewEngine(log *slog.Logger, caller RPCCaller, pts *PtsManager, applier *CommitApplier) *Engine {
	return &Engine{log: log, rpc: caller, pts: pts, applier: applier}
}

// SyncChannel implements spec §4.5 sync_channel: fetch server pts, and if
// a gap exists, fetch and apply the difference in pts order.
func (e *Engine) SyncChannel(ctx context.Context, channelID uint64, channelType model.ChannelType) Status {
	var resp getChannelPtsResponse
	if err := e.rpc.Call(ctx, rpc.RouteGetChannelPts, getChannelPtsRequest{channelID, channelType}, &resp); err != nil {
		e.log.Error("get_channel_pts failed", slog.Any("err", err))
		return StatusFailed
	}

	gap, err := e.pts.HasGap(ctx, channelID, channelType, resp.Pts)
	if err != nil {
		e.log.Error("pts gap check failed", slog.Any("err", err))
		return StatusFailed
	}
	if !gap {
		return StatusSynced
	}

	if err := e.fetchAndApplyDifference(ctx, channelID, channelType, resp.Pts); err != nil {
		e.log.Error("sync_channel difference apply failed", slog.Any("err", err))
		return StatusFailed
	}
	return StatusSynced
}

func (e *Engine) fetchAndApplyDifference(ctx context.Context, channelID uint64, channelType model.ChannelType, serverPts uint64) error {
	localPts, err := e.pts.LocalPts(ctx, channelID, channelType)
	if err != nil {
		return err
	}

	var diff getDifferenceResponse
	req := getDifferenceRequest{ChannelID: channelID, ChannelType: channelType, FromPts: localPts, ToPts: serverPts}
	if err := e.rpc.Call(ctx, rpc.RouteGetDifference, req, &diff); err != nil {
		return err
	}

	// Apply strictly in pts order (spec §4.5: "feeds the returned commit
	// list to the Commit Applier in pts order").
	commits := make([]model.Commit, len(diff.Commits))
	copy(commits, diff.Commits)
	insertionSortByPts(commits)

	for _, c := range commits {
		if err := e.applier.Apply(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// SyncAllChannels implements spec §4.5 sync_all_channels: batch the pts
// check, then sequentially sync each channel with a gap.
func (e *Engine) SyncAllChannels(ctx context.Context, channels []model.Channel) error {
	if len(channels) == 0 {
		return nil
	}
	req := batchGetChannelPtsRequest{}
	for _, c := range channels {
		req.Channels = append(req.Channels, getChannelPtsRequest{c.ChannelID, c.ChannelType})
	}

	var resp batchGetChannelPtsResponse
	if err := e.rpc.Call(ctx, rpc.RouteBatchGetChannelPts, req, &resp); err != nil {
		return err
	}

	for _, ch := range resp.Channels {
		gap, err := e.pts.HasGap(ctx, ch.ChannelID, ch.ChannelType, ch.Pts)
		if err != nil {
			return err
		}
		if !gap {
			continue
		}
		if status := e.SyncChannel(ctx, ch.ChannelID, ch.ChannelType); status == StatusFailed {
			e.log.Warn("channel sync failed during sync_all_channels",
				slog.Uint64("channel_id", ch.ChannelID))
		}
	}
	return nil
}

// HandlePush implements spec §4.5's inbound-push decision: apply directly
// on P == local+1, run a channel sync inline on a gap, discard a duplicate.
func (e *Engine) HandlePush(ctx context.Context, c model.Commit) error {
	local, err := e.pts.LocalPts(ctx, c.ChannelID, c.ChannelType)
	if err != nil {
		return err
	}
	switch {
	case c.Pts == local+1:
		return e.applier.Apply(ctx, c)
	case c.Pts > local+1:
		e.log.Debug("gap detected on inbound push, syncing channel",
			slog.Uint64("channel_id", c.ChannelID), slog.Uint64("local_pts", local), slog.Uint64("server_pts", c.Pts))
		e.SyncChannel(ctx, c.ChannelID, c.ChannelType)
		return nil
	default:
		return nil // duplicate, discard
	}
}

func insertionSortByPts(commits []model.Commit) {
	for i := 1; i < len(commits); i++ {
		for j := i; j > 0 && commits[j-1].Pts > commits[j].Pts; j-- {
			commits[j-1], commits[j] = commits[j], commits[j-1]
		}
	}
}
