package crypto

import "github.com/google/uuid"

// IDGenerator mints message, audit and session token ids.
type IDGenerator interface {
	NewID() (string, error)
}

// UUIDGenerator issues version 7 UUIDs so ids sort roughly by creation time.
type UUIDGenerator struct{}

func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

func (g *UUIDGenerator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
