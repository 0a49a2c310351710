package domain

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
)

type State string

const (
	StateNone     State = "none"
	StatePending  State = "pending"
	StateAccepted State = "accepted"
	StateBlocked  State = "blocked"
)

// Record is the consent of To to receive messages from From. Records are
// directed: (a,b) and (b,a) are independent.
type Record struct {
	From          string     `json:"from"`
	To            string     `json:"to"`
	State         State      `json:"state"`
	RequestedAt   *time.Time `json:"requested_at,omitempty"`
	RespondedAt   *time.Time `json:"responded_at,omitempty"`
	Preview       string     `json:"preview,omitempty"`
	Grandfathered bool       `json:"grandfathered"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// HistoryEntry is one message of a thread as seen by the engine.
type HistoryEntry struct {
	From           string
	ConsentAtSend  string
	ConsentPayload bool
}

// Preview trims and caps text to the stored preview length in runes.
func Preview(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= constants.ConsentPreviewLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:constants.ConsentPreviewLength])
}
