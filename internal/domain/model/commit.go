package model

// CommitType is the closed set of server-issued state-change kinds (spec §3,
// §4.5).
type CommitType string

const (
	CommitText    CommitType = "text"
	CommitImage   CommitType = "image"
	CommitVideo   CommitType = "video"
	CommitAudio   CommitType = "audio"
	CommitFile    CommitType = "file"
	CommitRevoke  CommitType = "revoke"
	CommitDelete  CommitType = "delete"
	CommitEdit    CommitType = "edit"
	CommitReaction CommitType = "reaction"
)

// IsMessageBody reports whether the commit type inserts a new message row.
func (t CommitType) IsMessageBody() bool {
	switch t {
	case CommitText, CommitImage, CommitVideo, CommitAudio, CommitFile:
		return true
	default:
		return false
	}
}

// Commit is a server-assigned, per-channel-ordered record of a state
// change. Within a channel commits form a gap-free sequence of Pts values
// (spec §3 invariant); clients detect server_pts > local_pts+1 as a gap.
type Commit struct {
	ChannelID       uint64
	ChannelType     ChannelType
	Pts             uint64
	ServerMsgID     uint64
	SenderID        int64
	ServerTimestamp int64
	MessageType     CommitType
	Content         CommitContent
}

// CommitContent is the typed payload carried by a commit. Only the fields
// relevant to MessageType are populated; this mirrors the original
// untagged-JSON content blob without resorting to `any`.
type CommitContent struct {
	Body              string // text / rendered content for body commits
	LocalMessageID    uint64
	RevokedMessageID  uint64
	EditedContent     string
	ReactionEmoji     string
	ReactionMessageID uint64
	Extra             string
}
