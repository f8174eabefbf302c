package notify

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/speedrun-hq/bridgerunner/pkg/bridge"
	"github.com/speedrun-hq/bridgerunner/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	subject string
	data    []byte
}

type recordingConn struct {
	mu       sync.Mutex
	messages []message
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.messages = append(c.messages, message{subject: subject, data: data})
	return nil
}

type staticSource struct {
	fn func(bridge.Snapshot)
}

func (s *staticSource) Subscribe(fn func(bridge.Snapshot)) func() {
	s.fn = fn
	return func() { s.fn = nil }
}

func TestPublish(t *testing.T) {
	conn := &recordingConn{}
	p := NewPublisher(conn, "bridge.session.", &logger.EmptyLogger{})

	snap := bridge.Snapshot{
		SessionID:        "abc",
		Version:          4,
		SourceChain:      8453,
		DestinationChain: 42161,
		Status:           bridge.StateBridging,
		TxHash:           "0x01",
	}
	require.NoError(t, p.Publish(snap))

	require.Len(t, conn.messages, 1)
	assert.Equal(t, "bridge.session.abc", conn.messages[0].subject)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(conn.messages[0].data, &decoded))
	assert.Equal(t, "bridging", decoded["status"])
	assert.Equal(t, "0x01", decoded["txHash"])
	assert.Equal(t, float64(42161), decoded["destinationChainId"])
}

func TestPublishError(t *testing.T) {
	conn := &recordingConn{err: errors.New("nats: connection closed")}
	p := NewPublisher(conn, "", &logger.EmptyLogger{})
	assert.Equal(t, DefaultSubjectPrefix+".s1", p.Subject("s1"))
	assert.Error(t, p.Publish(bridge.Snapshot{SessionID: "s1"}))
}

func TestAttach(t *testing.T) {
	conn := &recordingConn{}
	p := NewPublisher(conn, "", &logger.EmptyLogger{})
	src := &staticSource{}

	detach := p.Attach(src)
	require.NotNil(t, src.fn)
	src.fn(bridge.Snapshot{SessionID: "s1", Status: bridge.StateQuoting})
	src.fn(bridge.Snapshot{SessionID: "s1", Status: bridge.StateReady})
	assert.Len(t, conn.messages, 2)

	detach()
	assert.Nil(t, src.fn)

	p.Close()
}
