package service

import (
	"time"

	identitydomain "github.com/AlibekovAA/dh-trust/backend/internal/identity/domain"
)

func sampleIdentity() identitydomain.Identity {
	return identitydomain.Identity{
		ID:           "id-1",
		Handle:       "alice",
		Status:       identitydomain.StatusActive,
		KeyRotatedAt: time.Unix(0, 0).UTC(),
	}
}
