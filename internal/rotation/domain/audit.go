package domain

import "time"

const ReasonSuccess = "success"

// AuditEntry is one rotation attempt. The log is append-only.
type AuditEntry struct {
	ID        string    `json:"id"`
	Handle    string    `json:"handle"`
	OldKey    string    `json:"old_key,omitempty"`
	NewKey    string    `json:"new_key,omitempty"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason"`
	ClientIP  string    `json:"client_ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
