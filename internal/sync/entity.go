package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
	"github.com/privchat/privchat-sdk-go/internal/rpc"
)

const cursorBucket = "sync_cursor"

// CursorStore is the subset of *storage.Store the Entity Sync Engine uses
// for its cursor and is shared with the user-settings applier.
type CursorStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, bool, error)
	Put(ctx context.Context, bucket, key string, value []byte) error
}

// EntityApplierStore is the subset of *storage.Store the per-type
// appliers write through (spec §4.6 step 3).
type EntityApplierStore interface {
	UpsertUser(ctx context.Context, u model.User) error
	UpsertFriend(ctx context.Context, f model.Friend) error
	UpsertGroup(ctx context.Context, g model.Group) error
	UpsertGroupMember(ctx context.Context, m model.GroupMember) error
	UpsertUserBlock(ctx context.Context, b model.UserBlock) error
	UpsertChannel(ctx context.Context, c model.Channel) error
	SetUserSetting(ctx context.Context, key, value string) error
}

// cursorKey implements spec §4.6's key format: sync_cursor:{entity_type}
// or sync_cursor:{entity_type}:{scope}.
func cursorKey(entityType model.EntityType, scope string) string {
	if scope == "" {
		return string(entityType)
	}
	return string(entityType) + ":" + scope
}

type syncEntitiesRequest struct {
	EntityType    model.EntityType `json:"entity_type"`
	SinceVersion  int64            `json:"since_version"`
	Scope         string           `json:"scope,omitempty"`
	Limit         int              `json:"limit"`
}

type syncEntitiesResponse struct {
	Items       []model.EntitySyncItem `json:"items"`
	NextVersion int64                  `json:"next_version"`
	HasMore     bool                   `json:"has_more"`
}

// EntityEngine is the Entity Sync Engine (spec §4.6): a stateless
// collaborator parameterized by storage and the RPC Router. It performs
// no retry or backoff of its own (spec §4.6: "Engine does no retry. All
// retry/backoff/lifecycle policy belongs to a scheduler layer
// deliberately outside this specification").
type EntityEngine struct {
	log     *slog.Logger
	rpc     RPCCaller
	cursors CursorStore
	store   EntityApplierStore
}

func NewEntityEngine(log *slog.Logger, caller RPCCaller, cursors CursorStore, store EntityApplierStore) *EntityEngine {
	return &EntityEngine{log: log, rpc: caller, cursors: cursors, store: store}
}

// isPaginationContinuation reports whether scope is a continuation token
// produced by a previous HasMore page, as opposed to a caller-supplied
// single-entity scope (spec §4.6 hard rule).
func isPaginationContinuation(scope string) bool {
	return strings.HasPrefix(scope, "cursor:")
}

// SyncEntities implements spec §4.6's single entrypoint. It runs until
// has_more is false, persisting next_version only after every item on a
// page has been applied.
func (e *EntityEngine) SyncEntities(ctx context.Context, entityType model.EntityType, scope string) error {
	singleEntityRefresh := entityType.IsSingleEntityCapable() && scope != "" && !isPaginationContinuation(scope)

	currentScope := scope
	for {
		sinceVersion, err := e.readCursor(ctx, entityType, cursorScopeFor(entityType, scope))
		if err != nil {
			return err
		}

		var resp syncEntitiesResponse
		req := syncEntitiesRequest{EntityType: entityType, SinceVersion: sinceVersion, Scope: currentScope, Limit: 100}
		if err := e.rpc.Call(ctx, rpc.RouteSyncEntities, req, &resp); err != nil {
			return err // cursor is left untouched on RPC error (spec §8 round-trip property)
		}

		maxVersion := sinceVersion
		for _, item := range resp.Items {
			v, err := e.applyItem(ctx, entityType, currentScope, item)
			if err != nil {
				return err
			}
			if v > maxVersion {
				maxVersion = v
			}
		}

		if !singleEntityRefresh {
			if err := e.writeCursor(ctx, entityType, cursorScopeFor(entityType, scope), resp.NextVersion); err != nil {
				return err
			}
		}

		if !resp.HasMore {
			return nil
		}
		if len(resp.Items) == 0 {
			return nil
		}
		lastID := resp.Items[len(resp.Items)-1].EntityID
		currentScope = fmt.Sprintf("cursor:%d", lastID)
	}
}

// cursorScopeFor returns the scope segment used in the cursor key. A
// single-entity refresh never advances the collection cursor (spec §4.6
// hard rule), so it is keyed under its own per-entity-id segment rather
// than the collection's bare key. group_member has no collection-wide
// cursor at all (spec §4.6: scope = "a group id for group_member") — every
// group's members are keyed by that group id, or the sync has nothing to
// anchor the cursor to.
func cursorScopeFor(entityType model.EntityType, scope string) string {
	if entityType.IsSingleEntityCapable() && scope != "" && !isPaginationContinuation(scope) {
		return "entity:" + scope
	}
	if entityType == model.EntityGroupMember && scope != "" {
		return scope
	}
	return ""
}

func (e *EntityEngine) readCursor(ctx context.Context, entityType model.EntityType, scope string) (int64, error) {
	v, ok, err := e.cursors.Get(ctx, cursorBucket, cursorKey(entityType, scope))
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil {
		return 0, ierr.Wrap(ierr.Generic, err, "parsing cursor version")
	}
	return n, nil
}

func (e *EntityEngine) writeCursor(ctx context.Context, entityType model.EntityType, scope string, version int64) error {
	return e.cursors.Put(ctx, cursorBucket, cursorKey(entityType, scope), []byte(strconv.FormatInt(version, 10)))
}

// applyItem dispatches to the type-specific applier (spec §4.6 step 3)
// and returns the item's version for cursor advancement.
func (e *EntityEngine) applyItem(ctx context.Context, entityType model.EntityType, scope string, item model.EntitySyncItem) (int64, error) {
	switch entityType {
	case model.EntityFriend:
		// Friend and User share field names (UserID, Version); a flat,
		// unambiguous wire struct avoids the promoted-field collision an
		// embedded pair would hit during unmarshal.
		var f struct {
			UserID    int64
			FriendID  int64
			Version   int64
			Remark    string
			Username  string
			Nickname  string
			Avatar    string
			Signature string
		}
		if err := json.Unmarshal(item.Payload, &f); err != nil {
			return 0, err
		}
		user := model.User{UserID: f.FriendID, Version: f.Version, Username: f.Username, Nickname: f.Nickname, Avatar: f.Avatar, Signature: f.Signature}
		if err := e.store.UpsertUser(ctx, user); err != nil {
			return 0, err
		}
		friend := model.Friend{UserID: f.UserID, FriendID: f.FriendID, Version: f.Version, Remark: f.Remark}
		if err := e.store.UpsertFriend(ctx, friend); err != nil {
			return 0, err
		}
		return f.Version, nil

	case model.EntityGroup:
		var g model.Group
		if err := json.Unmarshal(item.Payload, &g); err != nil {
			return 0, err
		}
		if err := e.store.UpsertGroup(ctx, g); err != nil {
			return 0, err
		}
		return g.Version, nil

	case model.EntityChannel:
		var payload struct {
			model.Channel
			Tombstone bool `json:"tombstone"`
		}
		if err := json.Unmarshal(item.Payload, &payload); err != nil {
			return 0, err
		}
		if payload.Tombstone {
			// Channel application may reference Group rows per bootstrap
			// ordering; the tombstone carries no channel_type, so
			// deletion is logged and deferred rather than attempted
			// (spec §4.6 step 3, §9 open question).
			e.log.Warn("channel tombstone without channel_type; deletion deferred",
				slog.Uint64("channel_id", payload.ChannelID))
			return 0, nil
		}
		if err := e.store.UpsertChannel(ctx, payload.Channel); err != nil {
			return 0, err
		}
		return int64(payload.ChannelID), nil // channels have no server version field; monotone by id is the defined order here

	case model.EntityGroupMember:
		if scope == "" {
			return 0, ierr.NewInvalidParameter("scope", "group_member sync requires a group id scope")
		}
		var m model.GroupMember
		if err := json.Unmarshal(item.Payload, &m); err != nil {
			return 0, err
		}
		if err := e.store.UpsertGroupMember(ctx, m); err != nil {
			return 0, err
		}
		return m.Version, nil

	case model.EntityUser:
		var u model.User
		if err := json.Unmarshal(item.Payload, &u); err != nil {
			return 0, err
		}
		if err := e.store.UpsertUser(ctx, u); err != nil {
			return 0, err
		}
		return u.Version, nil

	case model.EntityUserBlock:
		var b model.UserBlock
		if err := json.Unmarshal(item.Payload, &b); err != nil {
			return 0, err
		}
		if err := e.store.UpsertUserBlock(ctx, b); err != nil {
			return 0, err
		}
		return b.Version, nil

	case model.EntityUserSettings:
		var kv model.UserSettingKV
		if err := json.Unmarshal(item.Payload, &kv); err != nil {
			return 0, err
		}
		if err := e.store.SetUserSetting(ctx, kv.Key, kv.Value); err != nil {
			return 0, err
		}
		return kv.Version, nil

	default:
		return 0, ierr.New(ierr.Generic, "unknown entity type "+string(entityType))
	}
}
