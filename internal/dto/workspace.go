package dto

import "github.com/noah-isme/applets-core/internal/models"

// ArbitraryServerRequest sets or clears a workspace's arbitrary-server block.
type ArbitraryServerRequest struct {
	UseArbitrary bool `json:"useArbitrary"`
	models.ArbitraryServer
}
