package publisher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/emonview/emonview/pkg/types"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error { return t.err }

// fakeClient records publishes. Methods it doesn't override panic.
type fakeClient struct {
	mqtt.Client

	mu        sync.Mutex
	published []Message
	failTopic string
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if topic == c.failTopic {
		return newFakeToken(errors.New("not authorized"))
	}
	c.published = append(c.published, Message{Topic: topic, Payload: payload.([]byte), Retained: retained})
	return newFakeToken(nil)
}

func (c *fakeClient) IsConnected() bool { return false }

func TestMessages(t *testing.T) {
	updated := time.Date(2026, 10, 19, 14, 30, 0, 0, time.UTC)
	msgs, err := Messages("home/electric", "My Electric", types.MyElectricData{PowerNow: 352.6, UsageToday: 12.5}, updated)
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, "home/electric/power", msgs[0].Topic)
	assert.Equal(t, "353", string(msgs[0].Payload))
	assert.Equal(t, "home/electric/usage_today", msgs[1].Topic)
	assert.Equal(t, "12.500", string(msgs[1].Payload))
	assert.Equal(t, "home/electric/state", msgs[2].Topic)
	assert.JSONEq(t, `{"title":"My Electric","powerNow":352.6,"usageToday":12.5,"updatedAt":"2026-10-19T14:30:00Z"}`, string(msgs[2].Payload))
	for _, m := range msgs {
		assert.True(t, m.Retained)
	}

	msgs, err = Messages("", "", types.MyElectricData{}, updated)
	require.NoError(t, err)
	assert.Equal(t, "emonview/power", msgs[0].Topic)
}

func TestPublish(t *testing.T) {
	msgs, err := Messages("p", "t", types.MyElectricData{PowerNow: 1}, time.Now())
	require.NoError(t, err)

	t.Run("all", func(t *testing.T) {
		client := &fakeClient{}
		p := newMQTT(client, "p")
		require.NoError(t, p.Publish(context.Background(), msgs))
		assert.Equal(t, msgs, client.published)
	})

	t.Run("stops at first failure", func(t *testing.T) {
		client := &fakeClient{failTopic: "p/usage_today"}
		p := newMQTT(client, "p")
		err := p.Publish(context.Background(), msgs)
		assert.ErrorContains(t, err, "not authorized")
		assert.Len(t, client.published, 1)
	})

	t.Run("close when disconnected", func(t *testing.T) {
		p := newMQTT(&fakeClient{}, "")
		assert.Equal(t, defaultTopicPrefix, p.prefix)
		p.Close()
	})
}

func TestConfigEnabled(t *testing.T) {
	assert.False(t, Config{}.Enabled())
	assert.True(t, Config{Broker: "localhost:1883"}.Enabled())

	_, err := NewMQTT(Config{})
	assert.Error(t, err)
}
