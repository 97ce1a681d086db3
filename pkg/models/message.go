package models

import "encoding/json"

// MessageKind is the closed set of inbound message kinds the coordinator
// accepts on its channel. Anything else is rejected at the boundary.
type MessageKind string

const (
	KindSubmitText      MessageKind = "submitText"
	KindSubmitMediaItem MessageKind = "submitMediaItem"
	KindQueryContext    MessageKind = "queryContext"
	KindCloseContext    MessageKind = "closeContext"
	KindSignIn          MessageKind = "signIn"
	KindSignOut         MessageKind = "signOut"
	KindGetAuthState    MessageKind = "getAuthState"
	KindPing            MessageKind = "ping"
)

// KnownKind reports whether k is part of the inbound contract
func KnownKind(k MessageKind) bool {
	switch k {
	case KindSubmitText, KindSubmitMediaItem, KindQueryContext, KindCloseContext,
		KindSignIn, KindSignOut, KindGetAuthState, KindPing:
		return true
	}
	return false
}

// Event kinds pushed to subscribed agents and UI surfaces
const (
	EventSessionUpdated   = "sessionUpdated"
	EventAuthStateUpdated = "authStateUpdated"
	EventAnalysisComplete = "analysisComplete"
	EventAnalysisError    = "analysisError"
	EventApplyHighlights  = "applyHighlights"
	EventDisplayMedia     = "displayMediaAnalysis"
)

// Envelope is an inbound channel message: a kind plus its raw payload.
// ID is caller-assigned and echoed on the response so a surface can
// correlate replies over a single socket.
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Kind    MessageKind     `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response status values. Skipped means the request was dropped on purpose
// (duplicate in flight); auth_error is a call-to-action, not a failure.
const (
	StatusOK        = "ok"
	StatusSkipped   = "skipped"
	StatusError     = "error"
	StatusAuthError = "auth_error"
)

// Response is the uniform reply to any inbound message. Kind echoes
// the request kind on replies and names the event kind on pushes.
type Response struct {
	ID     string        `json:"id,omitempty"`
	Kind   string        `json:"kind,omitempty"`
	Status string        `json:"status"`
	Data   interface{}   `json:"data,omitempty"`
	Error  *RequestError `json:"error,omitempty"`
}

// StatusFor maps an error code to the envelope status field
func StatusFor(err *RequestError) string {
	if err == nil {
		return StatusOK
	}
	switch err.Code {
	case ErrCodeAlreadyInFlight, ErrCodeAuthInProgress:
		return StatusSkipped
	case ErrCodeAuthRequired, ErrCodeAuthExpired:
		return StatusAuthError
	default:
		return StatusError
	}
}

// SubmitTextPayload is the payload for submitText
type SubmitTextPayload struct {
	ContextID string `json:"contextId"`
	URL       string `json:"url"`
	Text      string `json:"text"`
}

// SubmitMediaItemPayload is the payload for submitMediaItem
type SubmitMediaItemPayload struct {
	ContextID string    `json:"contextId"`
	ItemID    string    `json:"itemId"`
	Kind      MediaKind `json:"kind"`
	Locator   string    `json:"locator"`
}

// ContextPayload identifies a context for queryContext / closeContext
type ContextPayload struct {
	ContextID string `json:"contextId"`
}
