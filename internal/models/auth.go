package models

import "github.com/golang-jwt/jwt/v5"

// AccessClaims are the claims of an access token issued by the platform's auth service.
type AccessClaims struct {
	UserID string `json:"uid"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// Principal returns the authenticated caller named by the claims.
func (c *AccessClaims) Principal() Principal {
	userID := c.UserID
	if userID == "" {
		userID = c.Subject
	}
	return Principal{UserID: userID, Email: c.Email}
}
