package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/credlens/coordinator/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// extension pages connect from extension origins
		return true
	},
}

// channelConn serializes writes to one websocket. The event pump and the
// request loop both write, and gorilla allows one writer at a time.
type channelConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *channelConn) send(resp models.Response) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(resp)
}

// HandleChannel upgrades to a websocket carrying the message contract.
// Extraction agents connect scoped to their own context; UI surfaces
// connect unscoped (or scoped to the contexts they display) and receive
// every matching event.
//
// GET /v1/channel?contexts=ctx-1,ctx-2&role=agent
func (h *Handler) HandleChannel(w http.ResponseWriter, r *http.Request) {
	var contexts []string
	if raw := r.URL.Query().Get("contexts"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				contexts = append(contexts, id)
			}
		}
	}
	role := r.URL.Query().Get("role")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("channel: upgrade failed: %v", err)
		return
	}

	cc := &channelConn{conn: conn}
	handle, events := h.notifier.Subscribe(contexts)

	log.Printf("channel: %s connected (contexts=%v)", roleName(role), contexts)

	// event pump: bus events become push frames until unsubscribe
	// closes the channel
	go func() {
		for ev := range events {
			frame := models.Response{
				Kind:   ev.Kind,
				Status: models.StatusOK,
				Data: map[string]interface{}{
					"contextId": ev.ContextID,
					"payload":   ev.Payload,
				},
			}
			if err := cc.send(frame); err != nil {
				return
			}
		}
	}()

	for {
		var env models.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			break
		}
		cc.send(h.handleEnvelope(env))
	}

	h.notifier.Unsubscribe(handle)
	conn.Close()

	// an agent owns its context: its page is gone when it disconnects,
	// so the session goes with it
	if role == "agent" && len(contexts) == 1 {
		h.dispatcher.CloseContext(contexts[0])
		h.limiter.Forget(contexts[0])
	}
	log.Printf("channel: %s disconnected (contexts=%v)", roleName(role), contexts)
}

// handleEnvelope dispatches one inbound message and builds its reply.
// The reply echoes the envelope ID so the surface can correlate it.
func (h *Handler) handleEnvelope(env models.Envelope) models.Response {
	reply := func(data interface{}, rerr *models.RequestError) models.Response {
		return models.Response{
			ID:     env.ID,
			Kind:   string(env.Kind),
			Status: models.StatusFor(rerr),
			Data:   data,
			Error:  rerr,
		}
	}

	if !models.KnownKind(env.Kind) {
		return reply(nil, models.NewError(models.ErrCodeUnknownKind, "unknown message kind %q", env.Kind))
	}

	switch env.Kind {
	case models.KindPing:
		return reply(map[string]string{"status": "ready"}, nil)

	case models.KindSubmitText:
		var p models.SubmitTextPayload
		if rerr := decodePayload(env.Payload, &p); rerr != nil {
			return reply(nil, rerr)
		}
		if rerr := h.allowSubmission(p.ContextID); rerr != nil {
			return reply(nil, rerr)
		}
		ack, rerr := h.dispatcher.SubmitText(p)
		return reply(ack, rerr)

	case models.KindSubmitMediaItem:
		var p models.SubmitMediaItemPayload
		if rerr := decodePayload(env.Payload, &p); rerr != nil {
			return reply(nil, rerr)
		}
		if rerr := h.allowSubmission(p.ContextID); rerr != nil {
			return reply(nil, rerr)
		}
		ack, rerr := h.dispatcher.SubmitMediaItem(p)
		return reply(ack, rerr)

	case models.KindQueryContext:
		var p models.ContextPayload
		if rerr := decodePayload(env.Payload, &p); rerr != nil {
			return reply(nil, rerr)
		}
		session, rerr := h.dispatcher.QueryContext(p.ContextID)
		return reply(session, rerr)

	case models.KindCloseContext:
		var p models.ContextPayload
		if rerr := decodePayload(env.Payload, &p); rerr != nil {
			return reply(nil, rerr)
		}
		if p.ContextID == "" {
			return reply(nil, models.NewError(models.ErrCodeValidation, "contextId is required"))
		}
		h.dispatcher.CloseContext(p.ContextID)
		h.limiter.Forget(p.ContextID)
		return reply(map[string]bool{"closed": true}, nil)

	case models.KindSignIn:
		status, rerr := h.authMgr.SignIn(context.Background())
		if rerr != nil {
			return reply(nil, rerr)
		}
		return reply(status, nil)

	case models.KindSignOut:
		h.authMgr.SignOut(context.Background())
		return reply(h.authMgr.Status(), nil)

	case models.KindGetAuthState:
		return reply(h.authMgr.Status(), nil)
	}

	return reply(nil, models.NewError(models.ErrCodeUnknownKind, "unknown message kind %q", env.Kind))
}

// allowSubmission applies the per-context rate limit on the channel path,
// mirroring the HTTP middleware
func (h *Handler) allowSubmission(contextID string) *models.RequestError {
	if contextID == "" {
		// the dispatcher reports the validation error
		return nil
	}
	if !h.limiter.Allow(contextID) {
		return models.NewError(models.ErrCodeRateLimited,
			"too many submissions for context %s, slow down", contextID)
	}
	return nil
}

func decodePayload(raw json.RawMessage, v interface{}) *models.RequestError {
	if len(raw) == 0 {
		return models.NewError(models.ErrCodeValidation, "payload is required")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return models.NewError(models.ErrCodeValidation, "invalid payload: %v", err)
	}
	return nil
}

func roleName(role string) string {
	if role == "" {
		return "surface"
	}
	return role
}
