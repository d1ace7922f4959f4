package kafka

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessage(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	msg, err := newMessage("product-1", map[string]int{"stock": 3}, map[string]string{"entity": "PRODUCT"}, at)

	require.NoError(t, err)
	assert.Equal(t, []byte("product-1"), msg.Key)
	assert.JSONEq(t, `{"stock":3}`, string(msg.Value))
	assert.Equal(t, at, msg.Time)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "entity", msg.Headers[0].Key)
	assert.Equal(t, []byte("PRODUCT"), msg.Headers[0].Value)
}

func TestNewMessage_UnencodableValue(t *testing.T) {
	_, err := newMessage("k", make(chan int), nil, time.Now())

	assert.Error(t, err)
}
