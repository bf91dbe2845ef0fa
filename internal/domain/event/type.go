package event

// Type identifies the type of moderation domain event
type Type string

const (
	TypeSubmissionPending  Type = "submission.pending"
	TypeSubmissionAccepted Type = "submission.accepted"
	TypeSubmissionRejected Type = "submission.rejected"
	TypeSubmissionWithdrawn Type = "submission.withdrawn"
	TypeCommentEdited      Type = "submission.comment_edited"
	TypeModerationChanged  Type = "registration.moderation_state_changed"
	TypeNotifyRequested    Type = "effect.notify"
	TypeReindexRequested   Type = "effect.reindex"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeSubmissionPending,
		TypeSubmissionAccepted,
		TypeSubmissionRejected,
		TypeSubmissionWithdrawn,
		TypeCommentEdited,
		TypeModerationChanged,
		TypeNotifyRequested,
		TypeReindexRequested:
		return true
	default:
		return false
	}
}
