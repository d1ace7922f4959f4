package notification

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProducer struct {
	key     string
	value   any
	headers map[string]string
}

func (f *fakeProducer) Publish(_ context.Context, key string, value any, headers map[string]string) error {
	f.key, f.value, f.headers = key, value, headers
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	producer := &fakeProducer{}
	env := testEnvelope(t)

	require.NoError(t, NewKafkaPublisher(producer).Publish(context.Background(), env))

	assert.Equal(t, "PRODUCT", producer.key)
	assert.Equal(t, env, producer.value)
	assert.Equal(t, map[string]string{"entity": "PRODUCT", "type": "CREATE"}, producer.headers)
}

func TestRelay_HandleMessage(t *testing.T) {
	hub := NewHub(nil)
	sub := &fakeSubscriber{}
	hub.Subscribe(sub)
	relay := NewRelay(hub, nil)

	value, err := json.Marshal(testEnvelope(t))
	require.NoError(t, err)

	require.NoError(t, relay.HandleMessage(context.Background(), []byte("PRODUCT"), value))
	assert.Equal(t, 1, sub.count())
}

func TestRelay_HandleMessage_Invalid(t *testing.T) {
	hub := NewHub(nil)
	sub := &fakeSubscriber{}
	hub.Subscribe(sub)
	relay := NewRelay(hub, nil)

	assert.Error(t, relay.HandleMessage(context.Background(), nil, []byte("not json")))
	assert.NoError(t, relay.HandleMessage(context.Background(), nil, []byte(`{"data":{}}`)))
	assert.Equal(t, 0, sub.count())
}
