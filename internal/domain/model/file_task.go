package model

// FileTask is a single attachment upload unit processed by the File Send
// Queue (spec §4.4; exact field shape from original_source's
// storage/queue/file_send_task.rs per SPEC_FULL.md's dropped-feature
// supplement).
type FileTask struct {
	LocalID            string
	UID                int64
	ChannelID          uint64
	ChannelType        ChannelType
	FromUID            int64
	LocalMessageID     uint64
	MessageType        CommitType // image | video | file
	Timestamp          int64
	PreUploadedThumbID string
	FilePath           string
}

// NeedsThumbnail reports whether the worker must upload a thumbnail
// before the body (spec §4.4: "For image/video tasks the worker first
// ensures a thumbnail is uploaded... unless pre_uploaded_thumbnail_id is
// set").
func (t FileTask) NeedsThumbnail() bool {
	if t.PreUploadedThumbID != "" {
		return false
	}
	return t.MessageType == CommitImage || t.MessageType == CommitVideo
}
