// Package bootstrap implements the Bootstrap Orchestrator (spec §4.7): the
// serialized initial-sync sequence run after authenticate or on explicit
// resume, grounded in the Sync Engine/Entity Sync Engine it sequences.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
	"github.com/privchat/privchat-sdk-go/internal/sync"
)

const bootstrapFlagBucket = "entity_sync"

// bootstrapFlagKey is per-user, matching spec §4.7's "a flag
// entity_sync:bootstrap_completed (per user) is set only on complete
// success".
func bootstrapFlagKey(userID int64) string {
	return "bootstrap_completed:" + itoa(userID)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// FlagStore is the subset of *storage.Store the bootstrap flag uses.
type FlagStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, bool, error)
	Put(ctx context.Context, bucket, key string, value []byte) error
	ListChannels(ctx context.Context) ([]model.Channel, error)
}

// Orchestrator runs the ordered Friend -> Group -> Channel -> UserSettings
// entity syncs followed by sync_all_channels (spec §4.7).
type Orchestrator struct {
	log     *slog.Logger
	entity  *sync.EntityEngine
	pts     *sync.Engine
	flags   FlagStore
}

func NewOrchestrator(log *slog.Logger, entity *sync.EntityEngine, pts *sync.Engine, flags FlagStore) *Orchestrator {
	return &Orchestrator{log: log, entity: entity, pts: pts, flags: flags}
}

// Run executes the bootstrap sequence for userID. Ordering matters: Channel
// application may reference Group rows, and UserSettings runs last because
// it is small and non-blocking (spec §4.7). Failure of any stage aborts the
// remainder; the completion flag is set only on complete success.
func (o *Orchestrator) Run(ctx context.Context, userID int64) error {
	stages := []struct {
		name   string
		entity model.EntityType
	}{
		{"friend", model.EntityFriend},
		{"group", model.EntityGroup},
		{"channel", model.EntityChannel},
		{"user_settings", model.EntityUserSettings},
	}

	for _, stage := range stages {
		o.log.Info("bootstrap stage starting", slog.String("stage", stage.name))
		if err := o.entity.SyncEntities(ctx, stage.entity, ""); err != nil {
			o.log.Error("bootstrap stage failed", slog.String("stage", stage.name), slog.Any("err", err))
			return ierr.Wrap(ierr.KindOf(err), err, "bootstrap stage "+stage.name+" failed")
		}
	}

	channels, err := o.flags.ListChannels(ctx)
	if err != nil {
		return err
	}
	if err := o.pts.SyncAllChannels(ctx, channels); err != nil {
		o.log.Error("bootstrap sync_all_channels failed", slog.Any("err", err))
		return err
	}

	if err := o.flags.Put(ctx, bootstrapFlagBucket, bootstrapFlagKey(userID), []byte("1")); err != nil {
		return err
	}
	o.log.Info("bootstrap completed", slog.Int64("user_id", userID))
	return nil
}

// Completed reports whether bootstrap previously ran to completion for
// userID (spec §4.7).
func (o *Orchestrator) Completed(ctx context.Context, userID int64) (bool, error) {
	_, ok, err := o.flags.Get(ctx, bootstrapFlagBucket, bootstrapFlagKey(userID))
	if err != nil {
		return false, err
	}
	return ok, nil
}
