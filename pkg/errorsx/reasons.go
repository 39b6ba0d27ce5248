package errorsx

// ReasonCode is a short machine-readable error reason.
type ReasonCode string

const (
	ReasonUnknown ReasonCode = "unknown"

	ReasonMicDenied ReasonCode = "mic_denied"

	ReasonSessionStart  ReasonCode = "session_start"
	ReasonSessionEnd    ReasonCode = "session_end"
	ReasonVolumeChange  ReasonCode = "volume_change"
	ReasonSessionRemote ReasonCode = "session_remote"

	ReasonNotifySend   ReasonCode = "notify_send"
	ReasonJournalWrite ReasonCode = "journal_write"
)

// UserMessage returns the user-facing text shown for a reason, or "" when the
// reason carries no fixed message.
func UserMessage(reason ReasonCode) string {
	switch reason {
	case ReasonMicDenied:
		return "Microphone access denied"
	case ReasonSessionStart:
		return "Failed to start conversation"
	case ReasonSessionEnd:
		return "Failed to end conversation"
	case ReasonVolumeChange:
		return "Failed to change volume"
	default:
		return ""
	}
}
