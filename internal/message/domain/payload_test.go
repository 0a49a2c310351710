package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	commonerrors "github.com/AlibekovAA/dh-trust/backend/internal/common/errors"
)

func TestParsePayload(t *testing.T) {
	p, err := ParsePayload(json.RawMessage(`{"type":"consent","action":"accept","note":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, ConsentPayload{Action: "accept", Note: "hi"}, p)

	p, err = ParsePayload(json.RawMessage(`{"type":"reply","in_reply_to":"m-1"}`))
	require.NoError(t, err)
	assert.Equal(t, ReplyPayload{InReplyTo: "m-1"}, p)

	p, err = ParsePayload(json.RawMessage(`{"type":"reaction","message_id":"m-1","emoji":"👍"}`))
	require.NoError(t, err)
	assert.Equal(t, PayloadTypeReaction, p.Type())

	p, err = ParsePayload(json.RawMessage(` {"type":"location","lat":1.5} `))
	require.NoError(t, err)
	opaque, ok := p.(OpaquePayload)
	require.True(t, ok)
	assert.Equal(t, "location", opaque.Type())
	assert.JSONEq(t, `{"type":"location","lat":1.5}`, string(opaque.Raw))

	p, err = ParsePayload(json.RawMessage(`{"lat":1}`))
	require.NoError(t, err)
	assert.Equal(t, "", p.Type())
}

func TestParsePayload_Invalid(t *testing.T) {
	for _, raw := range []string{
		`[]`,
		`"consent"`,
		`{"type":7}`,
		`{"type":"consent","action":"maybe"}`,
		`{"type":"reply"}`,
		`{"type":"reaction","message_id":"m-1"}`,
	} {
		_, err := ParsePayload(json.RawMessage(raw))
		assert.ErrorIs(t, err, commonerrors.ErrInvalidPayload, raw)
	}
}

func TestThreadKeyIsUndirected(t *testing.T) {
	assert.Equal(t, ThreadKey("alice", "bob"), ThreadKey("bob", "alice"))
	assert.Equal(t, "thread:alice:bob", ThreadKey("bob", "alice"))
}

func TestMessagePayloadType(t *testing.T) {
	assert.Equal(t, "", Message{}.PayloadType())
	assert.Equal(t, "consent", Message{Payload: json.RawMessage(`{"type":"consent","action":"request"}`)}.PayloadType())
}
