package domain

import (
	"encoding/json"
	"time"
)

// ConsentStatus is the consent outcome recorded on a message at send time.
type ConsentStatus string

const (
	ConsentAccepted ConsentStatus = "accepted"
	ConsentPending  ConsentStatus = "pending"
)

type Message struct {
	ID                string          `json:"id"`
	From              string          `json:"from"`
	To                string          `json:"to"`
	Text              string          `json:"text,omitempty"`
	Payload           json.RawMessage `json:"payload,omitempty"`
	Version           json.Number     `json:"v,omitempty"`
	Timestamp         int64           `json:"timestamp,omitempty"`
	Nonce             string          `json:"nonce,omitempty"`
	Signature         string          `json:"signature,omitempty"`
	SignatureVerified *bool           `json:"signatureVerified,omitempty"`
	SignatureReason   string          `json:"signatureReason,omitempty"`
	Consent           ConsentStatus   `json:"consent"`
	CreatedAt         time.Time       `json:"created_at"`
	Read              bool            `json:"read"`
	ReadAt            *time.Time      `json:"read_at,omitempty"`
}

// PayloadType returns the payload tag, or "" when the message has no payload.
func (m Message) PayloadType() string {
	if len(m.Payload) == 0 {
		return ""
	}
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(m.Payload, &head); err != nil {
		return ""
	}
	return head.Type
}

func InboxKey(handle string) string {
	return "inbox:" + handle
}

func OutboxKey(handle string) string {
	return "outbox:" + handle
}

// ThreadKey is undirected: both participants map to the same list.
func ThreadKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return "thread:" + a + ":" + b
}
