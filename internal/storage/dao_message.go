package storage

import (
	"context"
	"database/sql"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
)

// InsertMessage writes a new message row. Content is sealed with the
// per-user key before it touches disk (spec §6 at-rest encryption). The
// (channel_id, from_uid, local_message_id) unique index is the database's
// half of the dedup invariant (spec §3); a conflict means a duplicate
// echo, and ok is returned false rather than an error.
func (s *Store) InsertMessage(ctx context.Context, m model.Message) (id uint64, ok bool, err error) {
	sealed, err := s.cipher.Seal([]byte(m.Content))
	if err != nil {
		return 0, false, ierr.Wrap(ierr.Database, err, "sealing message content")
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO message(server_msg_id, local_message_id, from_uid, channel_id, channel_type,
			content, message_type, pts, order_seq, status, created_at, extra,
			revoked, revoked_at, revoked_by, is_deleted, expires, expire_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(channel_id, from_uid, local_message_id) DO NOTHING`,
		m.ServerMsgID, m.LocalMessageID, m.FromUID, m.ChannelID, m.ChannelType,
		sealed, m.MessageType, m.Pts, m.OrderSeq, m.Status, m.CreatedAt, m.Extra,
		boolToInt(m.Revoked), m.RevokedAt, m.RevokedBy, boolToInt(m.IsDeleted), boolToInt(m.Expires), m.ExpireAt)
	if err != nil {
		return 0, false, ierr.Wrap(ierr.Database, err, "inserting message")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, ierr.Wrap(ierr.Database, err, "rows affected")
	}
	if n == 0 {
		return 0, false, nil
	}
	lastID, err := res.LastInsertId()
	if err != nil {
		return 0, false, ierr.Wrap(ierr.Database, err, "last insert id")
	}
	return uint64(lastID), true, nil
}

// FindByChannelAndLocalID implements the dedup lookup used before an
// insert would otherwise race a duplicate server echo (spec §3 invariant).
func (s *Store) FindByChannelAndLocalID(ctx context.Context, channelID uint64, fromUID int64, localMessageID uint64) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, messageSelectCols+` WHERE channel_id = ? AND from_uid = ? AND local_message_id = ?`,
		channelID, fromUID, localMessageID)
	return s.scanMessage(row)
}

// FindByChannelAndServerMsgID looks a message up by its server-assigned
// id, used by the Commit Applier to resolve revoke/edit/reaction commits
// that address a message by server_msg_id rather than local row id.
func (s *Store) FindByChannelAndServerMsgID(ctx context.Context, channelID uint64, serverMsgID uint64) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, messageSelectCols+` WHERE channel_id = ? AND server_msg_id = ?`,
		channelID, serverMsgID)
	return s.scanMessage(row)
}

// MarkRevoked implements the revoke commit applier step (spec §4.5).
func (s *Store) MarkRevoked(ctx context.Context, messageID uint64, revokedBy int64, revokedAt int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE message SET revoked = 1, revoked_at = ?, revoked_by = ? WHERE id = ?`,
		revokedAt, revokedBy, messageID)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "marking message revoked")
	}
	return nil
}

// SoftDelete implements the delete commit applier step (spec §4.5): no
// event is required, the row is simply hidden from future reads.
func (s *Store) SoftDelete(ctx context.Context, messageID uint64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE message SET is_deleted = 1 WHERE id = ?`, messageID)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "soft deleting message")
	}
	return nil
}

// UpdateContent implements the edit commit applier step (spec §4.5).
func (s *Store) UpdateContent(ctx context.Context, messageID uint64, newContent string) error {
	sealed, err := s.cipher.Seal([]byte(newContent))
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "sealing edited content")
	}
	_, err = s.db.ExecContext(ctx, `UPDATE message SET content = ? WHERE id = ?`, sealed, messageID)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "updating message content")
	}
	return nil
}

// InsertReaction implements the reaction commit applier step (spec §4.5).
// Re-applying the same (message, user, emoji) pair is idempotent.
func (s *Store) InsertReaction(ctx context.Context, r model.Reaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reaction(message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(message_id, user_id, emoji) DO NOTHING`,
		r.MessageID, r.UserID, r.Emoji, r.CreatedAt)
	if err != nil {
		return ierr.Wrap(ierr.Database, err, "inserting reaction")
	}
	return nil
}

// ListByChannel returns the most recent messages for channelID in
// ascending order_seq, feeding the Timeline observer's Reset event.
func (s *Store) ListByChannel(ctx context.Context, channelID uint64, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		messageSelectCols+` WHERE channel_id = ? AND is_deleted = 0 ORDER BY order_seq DESC LIMIT ?`,
		channelID, limit)
	if err != nil {
		return nil, ierr.Wrap(ierr.Database, err, "listing channel messages")
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := s.scanMessageRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

const messageSelectCols = `SELECT id, server_msg_id, local_message_id, from_uid, channel_id, channel_type,
	content, message_type, pts, order_seq, status, created_at, extra,
	revoked, revoked_at, revoked_by, is_deleted, expires, expire_at FROM message`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanMessage(row *sql.Row) (*model.Message, error) {
	m, err := s.scanMessageRows(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (s *Store) scanMessageRows(r rowScanner) (*model.Message, error) {
	var m model.Message
	var sealed []byte
	var revoked, isDeleted, expires int
	if err := r.Scan(&m.ID, &m.ServerMsgID, &m.LocalMessageID, &m.FromUID, &m.ChannelID, &m.ChannelType,
		&sealed, &m.MessageType, &m.Pts, &m.OrderSeq, &m.Status, &m.CreatedAt, &m.Extra,
		&revoked, &m.RevokedAt, &m.RevokedBy, &isDeleted, &expires, &m.ExpireAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, ierr.Wrap(ierr.Database, err, "scanning message row")
	}
	plain, err := s.cipher.Open(sealed)
	if err != nil {
		return nil, ierr.Wrap(ierr.Database, err, "opening sealed message content")
	}
	m.Content = string(plain)
	m.Revoked = revoked != 0
	m.IsDeleted = isDeleted != 0
	m.Expires = expires != 0
	return &m, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
