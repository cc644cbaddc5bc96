package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{"event":"joinChat","chatId":"c1"}`))
	require.NoError(t, err)
	assert.Equal(t, EventJoinChat, env.Event)
	assert.Equal(t, "c1", env.ChatID)
}

func TestDecodeEnvelopeRejectsMalformedJSON(t *testing.T) {
	_, err := decodeEnvelope([]byte(`{"event":`))
	assert.Error(t, err)
}

func TestDecodeEnvelopeRequiresEventField(t *testing.T) {
	_, err := decodeEnvelope([]byte(`{"chatId":"c1"}`))
	assert.Error(t, err)
}

func TestRoutingInfoExtractsUsersAndSender(t *testing.T) {
	raw := json.RawMessage(`{
		"chat": {"_id": "c1", "users": [{"_id": "u1"}, {"_id": "u2"}]},
		"sender": {"_id": "u2"},
		"content": "hi"
	}`)

	info, err := routingInfo(raw)
	require.NoError(t, err)
	assert.Equal(t, "u2", info.Sender.ID)
	require.Len(t, info.Chat.Users, 2)
	assert.Equal(t, "u1", info.Chat.Users[0].ID)
}

func TestRoutingInfoRejectsEmptyUsers(t *testing.T) {
	_, err := routingInfo(json.RawMessage(`{"chat":{"users":[]},"sender":{"_id":"u1"}}`))
	assert.ErrorIs(t, err, ErrNoRecipients)

	_, err = routingInfo(json.RawMessage(`{"sender":{"_id":"u1"}}`))
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestRoutingInfoRejectsMalformedPayload(t *testing.T) {
	_, err := routingInfo(json.RawMessage(`"not an object"`))
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoRecipients)
}

func TestEncodeOutboundForwardsPayloadUnchanged(t *testing.T) {
	raw := json.RawMessage(`{"chat":{"users":[{"_id":"u1"}]},"sender":{"_id":"u2"},"custom":{"nested":true}}`)

	frame := encodeOutbound(EventMessageReceived, "", raw)
	require.NotNil(t, frame)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, EventMessageReceived, decoded.Event)
	assert.JSONEq(t, string(raw), string(decoded.Message))
}

func TestEncodeOutboundPresenceFrame(t *testing.T) {
	frame := encodeOutbound(EventTyping, "c1", nil)
	require.NotNil(t, frame)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, EventTyping, decoded.Event)
	assert.Equal(t, "c1", decoded.ChatID)
	assert.Empty(t, decoded.Message)
}
