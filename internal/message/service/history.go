package service

import (
	"context"

	consentdomain "github.com/AlibekovAA/dh-trust/backend/internal/consent/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/message/domain"
	"github.com/AlibekovAA/dh-trust/backend/internal/message/repository"
)

// HistoryReader exposes thread history to the consent engine. It reads the
// store directly so the engine and Service can be built independently.
type HistoryReader struct {
	store repository.Store
}

func NewHistoryReader(store repository.Store) *HistoryReader {
	return &HistoryReader{store: store}
}

func (h *HistoryReader) ThreadHistory(ctx context.Context, a, b string, limit int) ([]consentdomain.HistoryEntry, error) {
	ids, err := h.store.List(ctx, domain.ThreadKey(a, b), limit)
	if err != nil {
		return nil, err
	}
	msgs, err := h.store.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	entries := make([]consentdomain.HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, consentdomain.HistoryEntry{
			From:           m.From,
			ConsentAtSend:  string(m.Consent),
			ConsentPayload: m.PayloadType() == domain.PayloadTypeConsent,
		})
	}
	return entries, nil
}
