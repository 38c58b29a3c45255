package dto

import "time"

// FileUploadResult describes a stored answer file.
type FileUploadResult struct {
	Key       string    `json:"key"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
