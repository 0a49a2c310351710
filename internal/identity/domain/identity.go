package domain

import (
	"regexp"
	"strings"
	"time"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusRevoked Status = "revoked"
)

// Identity is a registered handle with its current signing key. PublicKey and
// RecoveryPublicKey hold canonical std base64; an empty RecoveryPublicKey
// means no recovery key was enrolled.
type Identity struct {
	ID                string     `json:"id"`
	Handle            string     `json:"handle"`
	PasswordHash      string     `json:"password_hash"`
	PublicKey         string     `json:"public_key"`
	RecoveryPublicKey string     `json:"recovery_public_key,omitempty"`
	Status            Status     `json:"status"`
	KeyRotatedAt      time.Time  `json:"key_rotated_at"`
	CreatedAt         time.Time  `json:"created_at"`
	RevokedAt         *time.Time `json:"revoked_at,omitempty"`
}

func (i Identity) HasRecoveryKey() bool {
	return i.RecoveryPublicKey != ""
}

func (i Identity) IsRevoked() bool {
	return i.Status == StatusRevoked
}

var handlePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{1,30}[a-z0-9]$`)

// NormalizeHandle trims, drops a leading '@' and lower-cases the handle.
func NormalizeHandle(raw string) (string, error) {
	h := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(raw), "@"))
	if !handlePattern.MatchString(h) {
		return "", commonerrors.ErrInvalidHandle
	}
	return h, nil
}
