package models

import "time"

// History rows embed the live row. Parent reference columns hold id_version keys
// of the parent snapshot instead of live ids.

// AppletHistory is an immutable applet snapshot.
type AppletHistory struct {
	IDVersion string `db:"id_version" json:"idVersion"`
	UserID    string `db:"user_id" json:"userId"`
	Applet
}

// ActivityHistory is an immutable activity snapshot; AppletID holds the applet id_version.
type ActivityHistory struct {
	IDVersion string `db:"id_version" json:"idVersion"`
	Activity
}

// ActivityItemHistory is an immutable item snapshot; ActivityID holds the activity id_version.
type ActivityItemHistory struct {
	IDVersion string `db:"id_version" json:"idVersion"`
	ActivityItem
}

// FlowHistory is an immutable flow snapshot; AppletID holds the applet id_version.
type FlowHistory struct {
	IDVersion string `db:"id_version" json:"idVersion"`
	Flow
}

// FlowItemHistory is an immutable flow step snapshot; both references hold id_version keys.
type FlowItemHistory struct {
	IDVersion string `db:"id_version" json:"idVersion"`
	FlowItem
}

// ActivityHistoryNode is an activity snapshot with its ordered items.
type ActivityHistoryNode struct {
	ActivityHistory
	Items []ActivityItemHistory `json:"items"`
}

// FlowHistoryNode is a flow snapshot with its ordered steps.
type FlowHistoryNode struct {
	FlowHistory
	Items []FlowItemHistory `json:"items"`
}

// AppletHistoryTree is a complete applet at one version.
type AppletHistoryTree struct {
	AppletHistory
	Activities []ActivityHistoryNode `json:"activities"`
	Flows      []FlowHistoryNode     `json:"activityFlows"`
}

// Activity returns the activity snapshot with the given id_version.
func (t *AppletHistoryTree) Activity(idVersion string) *ActivityHistoryNode {
	for i := range t.Activities {
		if t.Activities[i].IDVersion == idVersion {
			return &t.Activities[i]
		}
	}
	return nil
}

// Flow returns the flow snapshot with the given id_version.
func (t *AppletHistoryTree) Flow(idVersion string) *FlowHistoryNode {
	for i := range t.Flows {
		if t.Flows[i].IDVersion == idVersion {
			return &t.Flows[i]
		}
	}
	return nil
}

// AppletVersion is one entry of an applet's version list.
type AppletVersion struct {
	Version   string    `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	CreatorID string    `db:"user_id" json:"creatorId"`
}
