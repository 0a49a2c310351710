package realtime

import "encoding/json"

const (
	TypeMessage        = "message"
	TypeConsentRequest = "consent_request"
	TypeShutdown       = "shutdown"
)

// Envelope is the frame pushed to connected clients.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	SentAt  int64           `json:"sent_at"`
}
