package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisteredEventPayload(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := RegisteredEvent{PrincipalID: 42, PrincipalKey: "alice@example.com", At: at}

	assert.Equal(t, TopicRegistered, e.Topic())
	assert.Equal(t, "42", e.Key())

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"principal_id":42,"key":"alice@example.com","at":"2024-05-01T12:00:00Z"}`, string(data))
}

func TestEventKeys(t *testing.T) {
	assert.Equal(t, "jti-1", LoginEvent{PrincipalID: 1, TokenID: "jti-1"}.Key())
	assert.Equal(t, "jti-2", LogoutEvent{TokenID: "jti-2"}.Key())

	transfer := TransferEvent{FromID: 3, ToID: 4, Amount: decimal.NewFromInt(10)}
	assert.Equal(t, TopicTransfer, transfer.Topic())
	assert.Equal(t, "3", transfer.Key())
}
