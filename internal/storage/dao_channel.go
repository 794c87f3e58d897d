package storage

import (
	"context"
	"database/sql"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

const channelSelectCols = `SELECT channel_id, channel_type, display_name, avatar, unread_count,
	last_msg_pts, last_msg_timestamp, last_local_msg_id, muted, top, saved, forbidden, following
	FROM channel`

// UpsertChannel creates or updates a channel row; a channel is created the
// first time it is referenced, per spec §3.
func (s *Store) UpsertChannel(ctx context.Context, c model.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channel(channel_id, channel_type, display_name, avatar, unread_count,
			last_msg_pts, last_msg_timestamp, last_local_msg_id, muted, top, saved, forbidden, following)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, channel_type) DO UPDATE SET
			display_name = excluded.display_name,
			avatar = excluded.avatar,
			muted = excluded.muted,
			top = excluded.top,
			saved = excluded.saved,
			forbidden = excluded.forbidden,
			following = excluded.following`,
		c.ChannelID, c.ChannelType, c.DisplayName, c.Avatar, c.UnreadCount,
		c.LastMsgPts, c.LastMsgTimestamp, c.LastLocalMsgID,
		boolToInt(c.Muted), boolToInt(c.Top), boolToInt(c.Saved), boolToInt(c.Forbidden), boolToInt(c.Following))
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "upserting channel")
	}
	return nil
}

// GetChannel returns the row for (channelID, channelType), or nil if it
// has never been referenced.
func (s *Store) GetChannel(ctx context.Context, channelID uint64, channelType model.ChannelType) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx, channelSelectCols+` WHERE channel_id = ? AND channel_type = ?`, channelID, channelType)
	return scanChannel(row)
}

// ListChannels feeds the channel-list observer's Reset event.
func (s *Store) ListChannels(ctx context.Context) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx, channelSelectCols+` ORDER BY top DESC, last_msg_timestamp DESC`)
	if err != nil {
		return nil, ierr.Wrap(ierr.Database, err, "listing channels")
	}
	defer rows.Close()

	var out []model.Channel
	for rows.Next() {
		c, err := scanChannelRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SetChannelPts atomically updates the cached last_msg_pts row backing the
// Pts Manager's cache-through read path (spec §4.5).
func (s *Store) SetChannelPts(ctx context.Context, channelID uint64, channelType model.ChannelType, pts uint64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE channel SET last_msg_pts = ? WHERE channel_id = ? AND channel_type = ?`,
		pts, channelID, channelType)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "updating channel pts")
	}
	return nil
}

func scanChannel(row *sql.Row) (*model.Channel, error) {
	c, err := scanChannelRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func scanChannelRows(r rowScanner) (*model.Channel, error) {
	var c model.Channel
	var muted, top, saved, forbidden, following int
	if err := r.Scan(&c.ChannelID, &c.ChannelType, &c.DisplayName, &c.Avatar, &c.UnreadCount,
		&c.LastMsgPts, &c.LastMsgTimestamp, &c.LastLocalMsgID, &muted, &top, &saved, &forbidden, &following); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, ierr.Wrap(ierr.Database, err, "scanning channel row")
	}
	c.Muted, c.Top, c.Saved, c.Forbidden, c.Following = muted != 0, top != 0, saved != 0, forbidden != 0, following != 0
	return &c, nil
}
