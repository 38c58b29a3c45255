package models

import "time"

// AppletRole is a caller's role on one applet.
type AppletRole string

const (
	RoleOwner       AppletRole = "owner"
	RoleManager     AppletRole = "manager"
	RoleCoordinator AppletRole = "coordinator"
	RoleEditor      AppletRole = "editor"
	RoleReviewer    AppletRole = "reviewer"
	RoleRespondent  AppletRole = "respondent"
)

// UserAppletAccess grants a user a role on an applet; OwnerID names the owning workspace user.
type UserAppletAccess struct {
	ID        string     `db:"id" json:"id"`
	UserID    string     `db:"user_id" json:"userId"`
	AppletID  string     `db:"applet_id" json:"appletId"`
	OwnerID   string     `db:"owner_id" json:"ownerId"`
	InvitorID string     `db:"invitor_id" json:"invitorId"`
	Role      AppletRole `db:"role" json:"role"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}
