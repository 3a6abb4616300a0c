package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent(t *testing.T) {
	event := NewEvent(UserCreated, 7, "a@b.com")

	assert.Equal(t, "user.created", event.Name)
	assert.Equal(t, 7, event.UserID)
	assert.Equal(t, "a@b.com", event.Email)
	assert.False(t, event.OccurredAt.IsZero())
}

func TestEventEncode(t *testing.T) {
	event := NewEvent(UserDeleted, 3, "a@b.com")

	body, attrs, err := event.encode()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"event": "user.deleted"}, attrs)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "user.deleted", decoded["event"])
	assert.Equal(t, float64(3), decoded["user_id"])
	assert.Equal(t, "a@b.com", decoded["email"])
	assert.Contains(t, decoded, "occurred_at")
}
