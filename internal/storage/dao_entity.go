package storage

import (
	"context"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

// UpsertUser implements the Entity Sync Engine's User/UserBlock applier
// (spec §4.6 step 3).
func (s *Store) UpsertUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user(user_id, version, username, nickname, avatar, signature)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			version = excluded.version, username = excluded.username, nickname = excluded.nickname,
			avatar = excluded.avatar, signature = excluded.signature
		WHERE excluded.version > user.version`,
		u.UserID, u.Version, u.Username, u.Nickname, u.Avatar, u.Signature)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "upserting user")
	}
	return nil
}

// UpsertFriend writes the Friend relation row for the Friend applier
// (spec §4.6 step 3); the applier upserts the paired User separately via
// UpsertUser.
func (s *Store) UpsertFriend(ctx context.Context, f model.Friend) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO friend(user_id, friend_id, version, remark) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, friend_id) DO UPDATE SET version = excluded.version, remark = excluded.remark
		WHERE excluded.version > friend.version`,
		f.UserID, f.FriendID, f.Version, f.Remark)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "upserting friend")
	}
	return nil
}

// UpsertGroup implements the Group applier; IsDismissed marks a tombstone
// (spec §4.6 step 3) but the row is retained, not deleted.
func (s *Store) UpsertGroup(ctx context.Context, g model.Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO "group"(group_id, version, name, avatar, owner_id, is_dismissed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(group_id) DO UPDATE SET
			version = excluded.version, name = excluded.name, avatar = excluded.avatar,
			owner_id = excluded.owner_id, is_dismissed = excluded.is_dismissed
		WHERE excluded.version > "group".version`,
		g.GroupID, g.Version, g.Name, g.Avatar, g.OwnerID, boolToInt(g.IsDismissed))
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "upserting group")
	}
	return nil
}

// UpsertGroupMember implements the GroupMember applier, scoped to a group
// id (spec §4.6 step 3).
func (s *Store) UpsertGroupMember(ctx context.Context, m model.GroupMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_member(group_id, user_id, version, role, nickname) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(group_id, user_id) DO UPDATE SET
			version = excluded.version, role = excluded.role, nickname = excluded.nickname
		WHERE excluded.version > group_member.version`,
		m.GroupID, m.UserID, m.Version, m.Role, m.Nickname)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "upserting group member")
	}
	return nil
}

// UpsertUserBlock implements the UserBlock applier.
func (s *Store) UpsertUserBlock(ctx context.Context, b model.UserBlock) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user SET blocked = 1 WHERE user_id = ?`, b.BlockedID)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "upserting user block")
	}
	return nil
}

// SetUserSetting implements the UserSettings key-value applier (spec §4.6
// step 3: "key-value write under entity_sync:user_settings:{key}").
func (s *Store) SetUserSetting(ctx context.Context, key, value string) error {
	return s.Put(ctx, "entity_sync:user_settings", key, []byte(value))
}

// GetUserSetting reads a previously applied user setting.
func (s *Store) GetUserSetting(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := s.Get(ctx, "entity_sync:user_settings", key)
	return string(v), ok, err
}
