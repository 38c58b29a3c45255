package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const fileTokenAudience = "answer-file"

// SignedURLSigner issues short-lived tokens that grant download of one answer file.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type fileClaims struct {
	AppletID string `json:"aid"`
	Key      string `json:"key"`
	jwt.RegisteredClaims
}

// NewSignedURLSigner constructs a signer. A non-positive ttl means 24h.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate returns a token binding appletID to the object key.
func (s *SignedURLSigner) Generate(appletID, key string) (string, time.Time, error) {
	if appletID == "" || key == "" {
		return "", time.Time{}, fmt.Errorf("appletID and key required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	now := s.now()
	expiresAt := now.Add(s.ttl).Truncate(time.Second)
	claims := fileClaims{
		AppletID: appletID,
		Key:      key,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{fileTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign file token: %w", err)
	}
	return token, expiresAt, nil
}

// Parse validates a token and returns the applet and object key it was issued for.
// allowExpired skips the expiry check only; the signature is always verified.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (appletID, key string, expiresAt time.Time, err error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(fileTokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	claims := &fileClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, opts...)
	if err != nil && !(allowExpired && onlyExpired(err)) {
		return "", "", time.Time{}, fmt.Errorf("invalid file token: %w", err)
	}
	if claims.AppletID == "" || claims.Key == "" || claims.ExpiresAt == nil {
		return "", "", time.Time{}, fmt.Errorf("invalid file token: incomplete claims")
	}
	return claims.AppletID, claims.Key, claims.ExpiresAt.Time, nil
}

func onlyExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired) &&
		!errors.Is(err, jwt.ErrTokenSignatureInvalid) &&
		!errors.Is(err, jwt.ErrTokenInvalidAudience)
}
