package models

import (
	"database/sql/driver"
	"time"

	"github.com/lib/pq"
)

// ClientMeta describes the submitting application and device.
type ClientMeta struct {
	AppID      string `json:"appId"`
	AppVersion string `json:"appVersion"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// Value implements driver.Valuer.
func (m ClientMeta) Value() (driver.Value, error) { return jsonColumn(m) }

// Scan implements sql.Scanner.
func (m *ClientMeta) Scan(src interface{}) error { return scanJSONColumn(src, m) }

// Answer is one submission group stored in the tenant database; ID is the submit id.
type Answer struct {
	ID                string     `db:"id" json:"id"`
	AppletID          string     `db:"applet_id" json:"appletId"`
	Version           string     `db:"version" json:"version"`
	AppletHistoryID   string     `db:"applet_history_id" json:"appletHistoryId"`
	ActivityHistoryID string     `db:"activity_history_id" json:"activityHistoryId"`
	FlowHistoryID     *string    `db:"flow_history_id" json:"flowHistoryId,omitempty"`
	RespondentID      string     `db:"respondent_id" json:"respondentId"`
	SourceSubjectID   *string    `db:"source_subject_id" json:"sourceSubjectId,omitempty"`
	TargetSubjectID   *string    `db:"target_subject_id" json:"targetSubjectId,omitempty"`
	InputSubjectID    *string    `db:"input_subject_id" json:"inputSubjectId,omitempty"`
	ClientMeta        ClientMeta `db:"client" json:"client"`
	AuditColumns
}

// AnswerItem is one answered activity within a submission group.
type AnswerItem struct {
	ID                string         `db:"id" json:"id"`
	AnswerID          string         `db:"answer_id" json:"answerId"`
	RespondentID      string         `db:"respondent_id" json:"respondentId"`
	AppletHistoryID   string         `db:"applet_history_id" json:"appletHistoryId"`
	ActivityHistoryID string         `db:"activity_history_id" json:"activityHistoryId"`
	Answer            string         `db:"answer" json:"-"`
	UserPublicKey     string         `db:"user_public_key" json:"userPublicKey"`
	ItemIDs           pq.StringArray `db:"item_ids" json:"itemIds"`
	Identifier        *string        `db:"identifier" json:"-"`
	ScheduledTime     *time.Time     `db:"scheduled_time" json:"scheduledTime,omitempty"`
	StartTime         time.Time      `db:"start_time" json:"startTime"`
	EndTime           time.Time      `db:"end_time" json:"endTime"`
	Events            JSONB          `db:"events" json:"-"`
	IsAssessment      bool           `db:"is_assessment" json:"isAssessment"`
	ReviewedAnswerID  *string        `db:"reviewed_answer_id" json:"reviewedAnswerId,omitempty"`
	AuditColumns
}

// Submission is an answer row with the items inserted alongside it.
type Submission struct {
	Answer Answer
	Items  []AnswerItem
}

// Completion is one completed activity of a respondent.
type Completion struct {
	AnswerID          string     `db:"answer_id" json:"answerId"`
	SubmitID          string     `db:"submit_id" json:"submitId"`
	AppletHistoryID   string     `db:"applet_history_id" json:"appletHistoryId"`
	ActivityHistoryID string     `db:"activity_history_id" json:"activityHistoryId"`
	FlowHistoryID     *string    `db:"flow_history_id" json:"flowHistoryId,omitempty"`
	RespondentID      string     `db:"respondent_id" json:"respondentId"`
	ScheduledTime     *time.Time `db:"scheduled_time" json:"scheduledTime,omitempty"`
	StartTime         time.Time  `db:"start_time" json:"startTime"`
	EndTime           time.Time  `db:"end_time" json:"endTime"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
}

// CompletionFilter narrows a completion listing.
type CompletionFilter struct {
	AppletID     string
	RespondentID string
	FromDate     time.Time
	Version      *string
}

// CipherRow is the slice of an answer item touched by reencryption.
type CipherRow struct {
	ID              string    `db:"id"`
	Answer          string    `db:"answer"`
	Identifier      *string   `db:"identifier"`
	UserPublicKey   string    `db:"user_public_key"`
	AppletHistoryID string    `db:"applet_history_id"`
	CreatedAt       time.Time `db:"created_at"`
}
