package sync

import (
	"context"
	"log/slog"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
	"github.com/privchat/privchat-sdk-go/internal/observer"
)

// MessageStore is the subset of *storage.Store the Commit Applier writes
// through (spec §4.5: "Commit Applier is the only writer of message rows
// resulting from server activity").
type MessageStore interface {
	InsertMessage(ctx context.Context, m model.Message) (id uint64, ok bool, err error)
	FindByChannelAndServerMsgID(ctx context.Context, channelID uint64, serverMsgID uint64) (*model.Message, error)
	MarkRevoked(ctx context.Context, messageID uint64, revokedBy int64, revokedAt int64) error
	SoftDelete(ctx context.Context, messageID uint64) error
	UpdateContent(ctx context.Context, messageID uint64, newContent string) error
	InsertReaction(ctx context.Context, r model.Reaction) error
}

// TimelinePublisher is the narrow seam into the observer Hub the Commit
// Applier needs, kept as an interface so sync stays decoupled from the
// Hub's concrete eviction/janitor machinery.
type TimelinePublisher interface {
	PublishTimeline(channelID uint64, ev observer.TimelineEvent)
}

// CommitApplier interprets typed commits into storage mutations (spec
// §4.5). It trusts the caller's ordering: applying out of order is a bug,
// not a condition it guards against.
type CommitApplier struct {
	log     *slog.Logger
	store   MessageStore
	pts     *PtsManager
	publish TimelinePublisher
}

func NewCommitApplier(log *slog.Logger, store MessageStore, pts *PtsManager, publish TimelinePublisher) *CommitApplier {
	return &CommitApplier{log: log, store: store, pts: pts, publish: publish}
}

// Apply applies a single commit and, on success, advances local_pts to
// commit.Pts (spec §4.5: "After successful application of a commit with
// pts P, local_pts := P").
func (a *CommitApplier) Apply(ctx context.Context, c model.Commit) error {
	if err := a.applyByType(ctx, c); err != nil {
		return err
	}
	return a.pts.SetPts(ctx, c.ChannelID, c.ChannelType, c.Pts)
}

func (a *CommitApplier) applyByType(ctx context.Context, c model.Commit) error {
	switch c.MessageType {
	case model.CommitText, model.CommitImage, model.CommitVideo, model.CommitAudio, model.CommitFile:
		return a.applyBody(ctx, c)
	case model.CommitRevoke:
		return a.applyRevoke(ctx, c)
	case model.CommitDelete:
		return a.applyDelete(ctx, c)
	case model.CommitEdit:
		return a.applyEdit(ctx, c)
	case model.CommitReaction:
		return a.applyReaction(ctx, c)
	default:
		return ierr.New(ierr.Generic, "unknown commit type "+string(c.MessageType))
	}
}

func (a *CommitApplier) applyBody(ctx context.Context, c model.Commit) error {
	msg := model.Message{
		ServerMsgID:    c.ServerMsgID,
		LocalMessageID: c.Content.LocalMessageID,
		FromUID:        c.SenderID,
		ChannelID:      c.ChannelID,
		ChannelType:    c.ChannelType,
		Content:        c.Content.Body,
		MessageType:    string(c.MessageType),
		Pts:            c.Pts,
		OrderSeq:       c.Pts,
		Status:         model.MessageDelivered,
		CreatedAt:      c.ServerTimestamp,
		Extra:          c.Content.Extra,
	}
	_, inserted, err := a.store.InsertMessage(ctx, msg)
	if err != nil {
		return err
	}
	if inserted {
		a.publish.PublishTimeline(c.ChannelID, observer.TimelineEvent{Kind: observer.DiffAppend, Items: []model.Message{msg}})
	}
	return nil
}

func (a *CommitApplier) applyRevoke(ctx context.Context, c model.Commit) error {
	target, err := a.store.FindByChannelAndServerMsgID(ctx, c.ChannelID, c.Content.RevokedMessageID)
	if err != nil {
		return err
	}
	if target == nil {
		a.log.Warn("revoke commit references unknown message", slog.Uint64("server_msg_id", c.Content.RevokedMessageID))
		return nil
	}
	if err := a.store.MarkRevoked(ctx, target.ID, c.SenderID, c.ServerTimestamp); err != nil {
		return err
	}
	target.Revoked = true
	a.publish.PublishTimeline(c.ChannelID, observer.TimelineEvent{Kind: observer.DiffUpdateByItemID, ItemID: target.ID, Items: []model.Message{*target}})
	return nil
}

// applyDelete is a soft-delete; no event is required (spec §4.5).
func (a *CommitApplier) applyDelete(ctx context.Context, c model.Commit) error {
	target, err := a.store.FindByChannelAndServerMsgID(ctx, c.ChannelID, c.Content.RevokedMessageID)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	return a.store.SoftDelete(ctx, target.ID)
}

func (a *CommitApplier) applyEdit(ctx context.Context, c model.Commit) error {
	target, err := a.store.FindByChannelAndServerMsgID(ctx, c.ChannelID, c.ServerMsgID)
	if err != nil {
		return err
	}
	if target == nil {
		a.log.Warn("edit commit references unknown message", slog.Uint64("server_msg_id", c.ServerMsgID))
		return nil
	}
	if err := a.store.UpdateContent(ctx, target.ID, c.Content.EditedContent); err != nil {
		return err
	}
	target.Content = c.Content.EditedContent
	a.publish.PublishTimeline(c.ChannelID, observer.TimelineEvent{Kind: observer.DiffUpdateByItemID, ItemID: target.ID, Items: []model.Message{*target}})
	return nil
}

func (a *CommitApplier) applyReaction(ctx context.Context, c model.Commit) error {
	target, err := a.store.FindByChannelAndServerMsgID(ctx, c.ChannelID, c.Content.ReactionMessageID)
	if err != nil {
		return err
	}
	if target == nil {
		a.log.Warn("reaction commit references unknown message", slog.Uint64("server_msg_id", c.Content.ReactionMessageID))
		return nil
	}
	r := model.Reaction{MessageID: target.ID, UserID: c.SenderID, Emoji: c.Content.ReactionEmoji, CreatedAt: c.ServerTimestamp}
	if err := a.store.InsertReaction(ctx, r); err != nil {
		return err
	}
	a.publish.PublishTimeline(c.ChannelID, observer.TimelineEvent{Kind: observer.DiffUpdateByItemID, ItemID: target.ID, Items: []model.Message{*target}})
	return nil
}
