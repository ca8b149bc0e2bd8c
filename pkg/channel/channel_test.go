package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoDispatcher(_ context.Context, _, action string, payload json.RawMessage) (any, error) {
	return map[string]any{"echo": action}, nil
}

func setupTestChannel(t *testing.T, handle Dispatcher) (*Channel, *httptest.Server) {
	t.Helper()
	ch := New(2 * time.Second)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Logf("accept error: %v", err)
			return
		}
		ch.HandleConnection(r.Context(), "sess-1", conn, handle)
	}))
	t.Cleanup(server.Close)
	return ch, server
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + server.URL[len("http"):]
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestConnectionEstablishedOnAccept(t *testing.T) {
	_, server := setupTestChannel(t, echoDispatcher)
	conn := connectWS(t, server)
	msg := readFrame(t, conn)
	assert.Equal(t, EventConnectionEstablished, msg["type"])
	assert.Equal(t, "sess-1", msg["session_id"])
}

func TestRequestResponseRoundTrip(t *testing.T) {
	_, server := setupTestChannel(t, echoDispatcher)
	conn := connectWS(t, server)
	readFrame(t, conn) // connection_established

	req := ClientRequest{Type: "request", Action: "health", RequestID: "r1"}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))

	resp := readFrame(t, conn)
	assert.Equal(t, "response", resp["type"])
	assert.Equal(t, "r1", resp["request_id"])
	assert.Equal(t, true, resp["ok"])
}

// TestReplacedSocketScenarioS2 mirrors spec scenario S2: a second socket to
// the same session closes the first with StatusReplaced and takes over the
// binding.
func TestReplacedSocketScenarioS2(t *testing.T) {
	ch, server := setupTestChannel(t, echoDispatcher)

	connA := connectWS(t, server)
	readFrame(t, connA) // connection_established on A

	connB := connectWS(t, server)
	readFrame(t, connB) // connection_established on B

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := connA.Read(ctx)
	require.Error(t, err)
	closeErr := websocket.CloseStatus(err)
	assert.Equal(t, StatusReplaced, closeErr)

	assert.True(t, ch.IsBound("sess-1"))
}

func TestSendPushesEventToBoundSocket(t *testing.T) {
	ch, server := setupTestChannel(t, echoDispatcher)
	conn := connectWS(t, server)
	readFrame(t, conn) // connection_established

	ok := ch.Send("sess-1", EventGraphUpdated, map[string]any{"nodes_updated": 3})
	require.True(t, ok)

	msg := readFrame(t, conn)
	assert.Equal(t, EventGraphUpdated, msg["type"])
	assert.EqualValues(t, 3, msg["nodes_updated"])
}

func TestSendToUnboundSessionReturnsFalse(t *testing.T) {
	ch := New(time.Second)
	assert.False(t, ch.Send("missing", EventGraphUpdated, nil))
}

func TestCloseAllClosesBoundSocketsAndClearsBindings(t *testing.T) {
	ch, server := setupTestChannel(t, echoDispatcher)
	conn := connectWS(t, server)
	readFrame(t, conn) // connection_established

	n := ch.CloseAll()
	assert.Equal(t, 1, n)
	assert.False(t, ch.IsBound("sess-1"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
}
