package models

const (
	TopicAppletChanged            = "applet.changed"
	TopicAnswerSubmitted          = "answer.submitted"
	TopicWorkspaceOwnerConflict   = "workspace.owner_conflict"
	TopicReencryptionAppletFailed = "reencryption.applet_failed"
	TopicReencryptionCompleted    = "reencryption.completed"
)

// AppletChangedEvent is published after an applet edit commits.
type AppletChangedEvent struct {
	AppletID        string   `json:"appletId"`
	Version         string   `json:"version"`
	PreviousVersion string   `json:"previousVersion,omitempty"`
	Bump            string   `json:"bump"`
	UserID          string   `json:"userId"`
	ChangeLog       []string `json:"changeLog"`
}

// AnswerSubmittedEvent is published after a submission group commits.
type AnswerSubmittedEvent struct {
	SubmitID        string   `json:"submitId"`
	AppletID        string   `json:"appletId"`
	AppletHistoryID string   `json:"appletHistoryId"`
	RespondentID    string   `json:"respondentId"`
	ActivityIDs     []string `json:"activityHistoryIds"`
	Arbitrary       bool     `json:"arbitrary"`
}

// OwnerConflictEvent reports an applet with more than one owner access.
type OwnerConflictEvent struct {
	AppletID string   `json:"appletId"`
	OwnerIDs []string `json:"ownerIds"`
	Chosen   string   `json:"chosen"`
}

// ReencryptionFailedEvent reports one applet whose answers could not be reencrypted.
type ReencryptionFailedEvent struct {
	UserID   string `json:"userId"`
	AppletID string `json:"appletId"`
	Reason   string `json:"reason"`
}

// ReencryptionCompletedEvent closes one reencryption run.
type ReencryptionCompletedEvent struct {
	UserID        string   `json:"userId"`
	Reencrypted   int      `json:"reencrypted"`
	FailedApplets []string `json:"failedApplets"`
}
