package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credlens/coordinator/pkg/models"
)

func dialChannel(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/channel" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, env models.Envelope) models.Response {
	t.Helper()
	require.NoError(t, conn.WriteJSON(env))

	// skip event pushes until the reply with our ID arrives
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var resp models.Response
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.ID == env.ID {
			return resp
		}
	}
}

func TestChannelPing(t *testing.T) {
	h, _ := newTestHandler(t, 10)
	server := httptest.NewServer(h.SetupRoutes())
	defer server.Close()

	conn := dialChannel(t, server, "")
	resp := roundTrip(t, conn, models.Envelope{ID: "req-1", Kind: models.KindPing})

	assert.Equal(t, models.StatusOK, resp.Status)
	assert.Equal(t, string(models.KindPing), resp.Kind)
}

func TestChannelUnknownKind(t *testing.T) {
	h, _ := newTestHandler(t, 10)
	server := httptest.NewServer(h.SetupRoutes())
	defer server.Close()

	conn := dialChannel(t, server, "")
	resp := roundTrip(t, conn, models.Envelope{ID: "req-1", Kind: "launchMissiles"})

	assert.Equal(t, models.StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeUnknownKind, resp.Error.Code)
}

func TestChannelSubmitTextAndEvent(t *testing.T) {
	h, mgr := newTestHandler(t, 10)
	signIn(t, mgr)
	server := httptest.NewServer(h.SetupRoutes())
	defer server.Close()

	conn := dialChannel(t, server, "?contexts=tab-1&role=agent")

	payload, _ := json.Marshal(models.SubmitTextPayload{
		ContextID: "tab-1",
		URL:       "https://example.com/article",
		Text:      "this is a long enough article body",
	})
	resp := roundTrip(t, conn, models.Envelope{ID: "req-1", Kind: models.KindSubmitText, Payload: payload})
	require.Equal(t, models.StatusOK, resp.Status)

	// the completed analysis is pushed as an event on the same socket
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var push models.Response
		require.NoError(t, conn.ReadJSON(&push))
		if push.Kind == models.EventAnalysisComplete {
			break
		}
	}
}

func TestChannelSignInFlow(t *testing.T) {
	h, _ := newTestHandler(t, 10)
	server := httptest.NewServer(h.SetupRoutes())
	defer server.Close()

	conn := dialChannel(t, server, "")

	resp := roundTrip(t, conn, models.Envelope{ID: "req-1", Kind: models.KindGetAuthState})
	data := resp.Data.(map[string]interface{})
	assert.Equal(t, false, data["signedIn"])

	resp = roundTrip(t, conn, models.Envelope{ID: "req-2", Kind: models.KindSignIn})
	require.Equal(t, models.StatusOK, resp.Status)
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, true, data["signedIn"])
}

func TestChannelMissingPayload(t *testing.T) {
	h, mgr := newTestHandler(t, 10)
	signIn(t, mgr)
	server := httptest.NewServer(h.SetupRoutes())
	defer server.Close()

	conn := dialChannel(t, server, "")
	resp := roundTrip(t, conn, models.Envelope{ID: "req-1", Kind: models.KindSubmitText})

	assert.Equal(t, models.StatusError, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, models.ErrCodeValidation, resp.Error.Code)
}

func TestChannelAgentDisconnectClosesContext(t *testing.T) {
	h, mgr := newTestHandler(t, 10)
	signIn(t, mgr)
	server := httptest.NewServer(h.SetupRoutes())
	defer server.Close()

	agent := dialChannel(t, server, "?contexts=tab-1&role=agent")

	payload, _ := json.Marshal(models.SubmitTextPayload{
		ContextID: "tab-1",
		URL:       "https://example.com/article",
		Text:      "this is a long enough article body",
	})
	resp := roundTrip(t, agent, models.Envelope{ID: "req-1", Kind: models.KindSubmitText, Payload: payload})
	require.Equal(t, models.StatusOK, resp.Status)

	agent.Close()

	// another surface sees the session disappear once the agent is gone
	other := dialChannel(t, server, "")
	query, _ := json.Marshal(models.ContextPayload{ContextID: "tab-1"})
	assert.Eventually(t, func() bool {
		resp := roundTrip(t, other, models.Envelope{ID: "req-2", Kind: models.KindQueryContext, Payload: query})
		return resp.Error != nil && resp.Error.Code == models.ErrCodeNotFound
	}, 2*time.Second, 50*time.Millisecond)
}
