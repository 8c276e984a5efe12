// Package testutil provides common test utilities for the go-livewire
// library.
package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/lightforgemedia/go-livewire/pkg/wire"
)

// MockServer is an httptest-backed WebSocket server that records every
// well-formed envelope it receives and can push frames to the client.
type MockServer struct {
	T      *testing.T
	Server *httptest.Server
	URL    string // ws:// form of the server URL

	// AnswerPing makes the server reply to PING frames with PONG.
	AnswerPing bool
	// RawHook, when set, is invoked with every raw inbound frame before
	// decoding. Useful for asserting on malformed-frame handling.
	RawHook func(data []byte)

	mu           sync.Mutex
	conn         *websocket.Conn
	conns        int
	lastIdentity string
	frames       []*wire.Envelope
}

// NewMockServer starts a mock server; it is torn down via t.Cleanup.
func NewMockServer(t *testing.T) *MockServer {
	t.Helper()
	ms := &MockServer{T: t, AnswerPing: true}
	ms.Server = httptest.NewServer(http.HandlerFunc(ms.handle))
	ms.URL = "ws" + strings.TrimPrefix(ms.Server.URL, "http")
	t.Cleanup(ms.Close)
	return ms
}

func (ms *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		ms.T.Logf("MockServer: accept error: %v", err)
		return
	}
	ms.mu.Lock()
	ms.conns++
	ms.conn = c
	ms.lastIdentity = r.URL.Query().Get("identity")
	ms.mu.Unlock()
	ms.T.Logf("MockServer: client connected (#%d)", ms.ConnCount())

	ctx := r.Context()
	for {
		_, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if ms.RawHook != nil {
			ms.RawHook(data)
		}
		env, derr := wire.Decode(data)
		if derr != nil {
			ms.T.Logf("MockServer: undecodable frame: %v", derr)
			continue
		}
		ms.mu.Lock()
		ms.frames = append(ms.frames, env)
		answerPing := ms.AnswerPing
		ms.mu.Unlock()
		if env.Type == wire.TypePing && answerPing {
			pong, _ := wire.New(wire.TypePong, nil)
			if err := ms.Send(pong); err != nil {
				ms.T.Logf("MockServer: pong failed: %v", err)
			}
		}
	}

	ms.mu.Lock()
	if ms.conn == c {
		ms.conn = nil
	}
	ms.mu.Unlock()
}

// Send pushes an envelope to the currently connected client.
func (ms *MockServer) Send(env *wire.Envelope) error {
	ms.mu.Lock()
	conn := ms.conn
	ms.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("mock server: no active connection")
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return conn.Write(context.Background(), websocket.MessageText, data)
}

// SendRaw pushes a raw frame, bypassing the codec. Lets tests deliver
// malformed payloads.
func (ms *MockServer) SendRaw(data []byte) error {
	ms.mu.Lock()
	conn := ms.conn
	ms.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("mock server: no active connection")
	}
	return conn.Write(context.Background(), websocket.MessageText, data)
}

// ConnCount reports how many connections the server has accepted.
func (ms *MockServer) ConnCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.conns
}

// LastIdentity returns the identity query parameter of the most recent
// connection.
func (ms *MockServer) LastIdentity() string {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.lastIdentity
}

// FramesOfType returns the recorded envelopes with the given type.
func (ms *MockServer) FramesOfType(typ string) []*wire.Envelope {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	var out []*wire.Envelope
	for _, env := range ms.frames {
		if env.Type == typ {
			out = append(out, env)
		}
	}
	return out
}

// CountOfType reports how many frames of the given type were received.
func (ms *MockServer) CountOfType(typ string) int {
	return len(ms.FramesOfType(typ))
}

// CloseCurrentConnection drops the active client connection without
// stopping the server, simulating an unexpected disconnect.
func (ms *MockServer) CloseCurrentConnection() {
	ms.mu.Lock()
	conn := ms.conn
	ms.conn = nil
	ms.mu.Unlock()
	if conn != nil {
		conn.Close(websocket.StatusGoingAway, "mock server dropping connection")
	}
}

// Close stops the server and drops any active connection.
func (ms *MockServer) Close() {
	ms.CloseCurrentConnection()
	ms.Server.Close()
}
