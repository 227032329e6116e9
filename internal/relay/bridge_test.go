package relay

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/decryptor/internal/apperr"
	"github.com/starford/decryptor/internal/message"
)

func testKeys(t *testing.T) *KeyDB {
	t.Helper()
	db, err := OpenKeyStore(filepath.Join(t.TempDir(), "keys.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type harness struct {
	bridge *Bridge
	agent  *Conn
	relay  *Conn
	done   chan error
}

func startBridge(t *testing.T, keys KeyStore) *harness {
	t.Helper()
	relaySide, agentSide := Pipe(message.JSON)
	b := New(relaySide, keys)
	ctx, cancel := context.WithCancel(context.Background())
	h := &harness{bridge: b, agent: agentSide, relay: relaySide, done: make(chan error, 1)}
	go func() { h.done <- b.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		relaySide.Close()
		agentSide.Close()
	})
	return h
}

// readAgent reads one message on the agent side in the background, since
// pipe writes block until they are consumed.
func (h *harness) readAgent() <-chan message.Message {
	out := make(chan message.Message, 1)
	go func() {
		m, err := h.agent.ReadMessage()
		if err == nil {
			out <- m
		}
		close(out)
	}()
	return out
}

func receive(t *testing.T, ch <-chan message.Message) message.Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		require.True(t, ok, "channel closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestSessionRequestAnsweredLocally(t *testing.T) {
	h := startBridge(t, nil)
	c := h.bridge.Attach()

	require.NoError(t, c.Send(message.SessionRequest{}))
	m := receive(t, c.Inbound())
	assert.Equal(t, message.SessionResponse{SessionID: c.ID()}, m)
}

func TestDecryptRequestForwardedWithSessionID(t *testing.T) {
	h := startBridge(t, nil)
	c := h.bridge.Attach()

	got := h.readAgent()
	require.NoError(t, c.Send(message.DecryptRequest{
		Data: "x", Encoding: message.EncodingASCII, MessageID: "m1", LastBlock: true,
	}))
	req, ok := receive(t, got).(message.DecryptRequest)
	require.True(t, ok)
	assert.Equal(t, c.ID(), req.SessionID)
	assert.Equal(t, "m1", req.MessageID)
}

func TestResponsesRoutedBySession(t *testing.T) {
	h := startBridge(t, nil)
	a := h.bridge.Attach()
	b := h.bridge.Attach()

	require.NoError(t, h.agent.WriteMessage(message.DecryptResponse{
		Success: true, MessageID: "for-b", SessionID: b.ID(), LastBlock: true,
	}))
	require.NoError(t, h.agent.WriteMessage(message.DecryptResponse{
		Success: true, MessageID: "nobody", SessionID: "missing", LastBlock: true,
	}))
	require.NoError(t, h.agent.WriteMessage(message.DecryptResponse{
		Success: true, MessageID: "for-a", SessionID: a.ID(), LastBlock: true,
	}))

	assert.Equal(t, "for-b", receive(t, b.Inbound()).(message.DecryptResponse).MessageID)
	assert.Equal(t, "for-a", receive(t, a.Inbound()).(message.DecryptResponse).MessageID)
}

func TestKeysStoredAndServed(t *testing.T) {
	h := startBridge(t, testKeys(t))

	require.NoError(t, h.agent.WriteMessage(message.UpdateKeysRequest{Keys: message.Keys{"alice": "pw"}}))
	require.NoError(t, h.agent.WriteMessage(message.GetKeysRequest{}))

	m, err := h.agent.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, message.GetKeysResponse{Keys: message.Keys{"alice": "pw"}}, m)
}

func TestSetKeysPushesToAgent(t *testing.T) {
	keys := testKeys(t)
	h := startBridge(t, keys)

	got := h.readAgent()
	require.NoError(t, h.bridge.SetKeys(context.Background(), message.Keys{"bob": ""}))
	assert.Equal(t, message.GetKeysResponse{Keys: message.Keys{"bob": ""}}, receive(t, got))

	stored, err := keys.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, message.Keys{"bob": ""}, stored)
}

func TestDetachedChannel(t *testing.T) {
	h := startBridge(t, nil)
	c := h.bridge.Attach()
	require.Equal(t, 1, h.bridge.Sessions())

	c.Close()
	assert.Equal(t, 0, h.bridge.Sessions())
	_, open := <-c.Inbound()
	assert.False(t, open)
	assert.True(t, errors.Is(c.Send(message.SessionRequest{}), apperr.ErrClosed))
}

func TestAgentDisconnectClosesChannels(t *testing.T) {
	h := startBridge(t, nil)
	c := h.bridge.Attach()

	h.agent.Close()
	select {
	case err := <-h.done:
		assert.True(t, errors.Is(err, apperr.ErrClosed), "err = %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	_, open := <-c.Inbound()
	assert.False(t, open)
}

func TestKeyStoreReplace(t *testing.T) {
	db := testKeys(t)
	ctx := context.Background()

	require.NoError(t, db.Replace(ctx, message.Keys{"a": "1", "b": "2"}))
	require.NoError(t, db.Replace(ctx, message.Keys{"c": "3"}))

	keys, err := db.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, message.Keys{"c": "3"}, keys)
}

func TestSlowSessionDoesNotStallBridge(t *testing.T) {
	h := startBridge(t, testKeys(t))
	c := h.bridge.Attach()

	const n = 500
	for i := 0; i < n; i++ {
		require.NoError(t, h.agent.WriteMessage(message.DecryptResponse{
			Success: true, MessageID: fmt.Sprintf("m%d", i), SessionID: c.ID(), LastBlock: true,
		}))
	}
	// The bridge still answers the agent while the session has read nothing.
	require.NoError(t, h.agent.WriteMessage(message.GetKeysRequest{}))
	m, err := h.agent.ReadMessage()
	require.NoError(t, err)
	assert.IsType(t, message.GetKeysResponse{}, m)

	for i := 0; i < n; i++ {
		got := receive(t, c.Inbound()).(message.DecryptResponse)
		require.Equal(t, fmt.Sprintf("m%d", i), got.MessageID)
	}
}
