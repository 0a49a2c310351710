package domain

import (
	"bytes"
	"encoding/json"
	"unicode/utf8"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
)

const (
	PayloadTypeConsent  = "consent"
	PayloadTypeReply    = "reply"
	PayloadTypeReaction = "reaction"
)

const (
	ConsentActionRequest = "request"
	ConsentActionAccept  = "accept"
	ConsentActionBlock   = "block"
)

const (
	maxNoteLength  = 280
	maxEmojiLength = 16
)

// Payload is a closed variant keyed by the "type" field. Unknown types are
// kept as OpaquePayload and passed through untouched.
type Payload interface {
	Type() string
}

type ConsentPayload struct {
	Action string `json:"action"`
	Note   string `json:"note,omitempty"`
}

func (ConsentPayload) Type() string { return PayloadTypeConsent }

type ReplyPayload struct {
	InReplyTo string `json:"in_reply_to"`
}

func (ReplyPayload) Type() string { return PayloadTypeReply }

type ReactionPayload struct {
	MessageID string `json:"message_id"`
	Emoji     string `json:"emoji"`
}

func (ReactionPayload) Type() string { return PayloadTypeReaction }

type OpaquePayload struct {
	Kind string
	Raw  json.RawMessage
}

func (p OpaquePayload) Type() string { return p.Kind }

func ParsePayload(raw json.RawMessage) (Payload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, invalidPayload("payload must be an object")
	}

	var head struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return nil, invalidPayload("type must be a string")
	}
	kind := ""
	if head.Type != nil {
		kind = *head.Type
	}

	switch kind {
	case PayloadTypeConsent:
		var p ConsentPayload
		if err := json.Unmarshal(trimmed, &p); err != nil {
			return nil, invalidPayload("malformed consent payload")
		}
		switch p.Action {
		case ConsentActionRequest, ConsentActionAccept, ConsentActionBlock:
		default:
			return nil, invalidPayload("consent action must be request, accept or block")
		}
		if utf8.RuneCountInString(p.Note) > maxNoteLength {
			return nil, invalidPayload("consent note too long")
		}
		return p, nil
	case PayloadTypeReply:
		var p ReplyPayload
		if err := json.Unmarshal(trimmed, &p); err != nil || p.InReplyTo == "" {
			return nil, invalidPayload("reply payload requires in_reply_to")
		}
		return p, nil
	case PayloadTypeReaction:
		var p ReactionPayload
		if err := json.Unmarshal(trimmed, &p); err != nil || p.MessageID == "" || p.Emoji == "" {
			return nil, invalidPayload("reaction payload requires message_id and emoji")
		}
		if utf8.RuneCountInString(p.Emoji) > maxEmojiLength {
			return nil, invalidPayload("reaction emoji too long")
		}
		return p, nil
	default:
		return OpaquePayload{Kind: kind, Raw: json.RawMessage(trimmed)}, nil
	}
}

func invalidPayload(reason string) error {
	return commonerrors.ErrInvalidPayload.WithDetails(map[string]any{"reason": reason})
}
