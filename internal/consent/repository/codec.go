package repository

import (
	"encoding/json"
	"fmt"

	"github.com/AlibekovAA/dh-trust/backend/internal/consent/domain"
)

func decodeRecord(raw []byte, out *domain.Record) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode consent record: %w", err)
	}
	return nil
}
