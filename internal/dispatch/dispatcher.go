// Package dispatch routes inbound requests to the right handler,
// enforces per-context in-flight deduplication, and issues the outbound
// analysis calls. One dispatcher instance owns all shared mutable state.
package dispatch

import (
	"context"
	"log"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/credlens/coordinator/internal/bus"
	"github.com/credlens/coordinator/internal/store"
	"github.com/credlens/coordinator/pkg/models"
)

// Analyzer is the remote analysis surface the dispatcher calls out to
type Analyzer interface {
	AnalyzeText(ctx context.Context, token, pageURL, text string) (*models.TextResult, *models.RequestError)
	AnalyzeMedia(ctx context.Context, token string, kind models.MediaKind, locator string) (string, float64, *models.RequestError)
}

// Identity is the slice of the identity manager the dispatcher needs
type Identity interface {
	Snapshot() (models.Credential, *models.RequestError)
	ReportUnauthorized(token string)
	Status() models.AuthStatus
}

// Config bounds submissions and remote calls
type Config struct {
	MinTextChars int
	MaxTextChars int
	CallTimeout  time.Duration
}

// Dispatcher mediates between agents, UI surfaces, and remote services
type Dispatcher struct {
	cfg      Config
	sessions *store.Store
	pending  *pendingTable
	analyzer Analyzer
	identity Identity
	notifier *bus.Bus
}

// New creates a dispatcher with an empty pending table
func New(cfg Config, sessions *store.Store, analyzer Analyzer, identity Identity, notifier *bus.Bus) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		sessions: sessions,
		pending:  newPendingTable(),
		analyzer: analyzer,
		identity: identity,
		notifier: notifier,
	}
}

// SubmitAck acknowledges an accepted submission
type SubmitAck struct {
	ContextID   string `json:"contextId"`
	ItemID      string `json:"itemId,omitempty"`
	Fingerprint string `json:"fingerprint"`
}

// SubmitText validates, dedups, and launches a text analysis for a
// context. The result lands in the session store asynchronously and is
// announced on the bus.
func (d *Dispatcher) SubmitText(p models.SubmitTextPayload) (*SubmitAck, *models.RequestError) {
	if p.ContextID == "" {
		return nil, models.NewError(models.ErrCodeValidation, "contextId is required")
	}

	// bounds are in characters, not bytes: truncating mid-rune would
	// hand the remote service a mangled tail
	text := strings.TrimSpace(p.Text)
	if utf8.RuneCountInString(text) < d.cfg.MinTextChars {
		return nil, models.NewError(models.ErrCodeValidation, "Content too short")
	}
	if runes := []rune(text); len(runes) > d.cfg.MaxTextChars {
		text = string(runes[:d.cfg.MaxTextChars])
	}

	fp := fingerprint(p.URL, text)
	key := dedupKey(p.ContextID, "text", fp)
	if !d.pending.acquire(key) {
		return nil, models.NewError(models.ErrCodeAlreadyInFlight, "already processing this content")
	}

	cred, rerr := d.identity.Snapshot()
	if rerr != nil {
		d.pending.release(key)
		return nil, rerr
	}

	d.sessions.Create(p.ContextID)
	go d.runTextAnalysis(key, p.ContextID, p.URL, text, cred)

	return &SubmitAck{ContextID: p.ContextID, Fingerprint: fp}, nil
}

func (d *Dispatcher) runTextAnalysis(key, contextID, pageURL, text string, cred models.Credential) {
	// the dedup slot is released whatever the outcome
	defer d.pending.release(key)

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.CallTimeout)
	defer cancel()

	result, rerr := d.analyzer.AnalyzeText(ctx, cred.Token, pageURL, text)
	if rerr != nil {
		if rerr.Code == models.ErrCodeAuthExpired {
			d.identity.ReportUnauthorized(cred.Token)
		}
		if !d.sessions.UpsertText(contextID, &models.TextResult{Error: rerr}) {
			log.Printf("dispatch: discarding text error for closed context %s", contextID)
			return
		}
		d.notifier.Publish(bus.Event{
			ContextID: contextID,
			Kind:      models.EventAnalysisError,
			Payload:   map[string]interface{}{"error": rerr},
		})
		return
	}

	if !d.sessions.UpsertText(contextID, result) {
		log.Printf("dispatch: discarding text result for closed context %s", contextID)
		return
	}

	d.notifier.Publish(bus.Event{
		ContextID: contextID,
		Kind:      models.EventAnalysisComplete,
		Payload:   map[string]interface{}{"result": result},
	})
	if len(result.Highlights) > 0 {
		d.notifier.Publish(bus.Event{
			ContextID: contextID,
			Kind:      models.EventApplyHighlights,
			Payload:   map[string]interface{}{"highlights": result.Highlights},
		})
	}
}

// SubmitMediaItem launches an analysis for one media item. Items are
// fully independent: one item's slow or failed call never blocks
// another's.
func (d *Dispatcher) SubmitMediaItem(p models.SubmitMediaItemPayload) (*SubmitAck, *models.RequestError) {
	if p.ContextID == "" || p.ItemID == "" || p.Locator == "" {
		return nil, models.NewError(models.ErrCodeValidation, "contextId, itemId, and locator are required")
	}
	if !p.Kind.Valid() {
		return nil, models.NewError(models.ErrCodeUnsupportedMedia, "unsupported media kind %q", p.Kind)
	}

	fp := fingerprint(p.ItemID, string(p.Kind), p.Locator)
	key := dedupKey(p.ContextID, "media", fp)
	if !d.pending.acquire(key) {
		return nil, models.NewError(models.ErrCodeAlreadyInFlight, "already processing this item")
	}

	cred, rerr := d.identity.Snapshot()
	if rerr != nil {
		d.pending.release(key)
		return nil, rerr
	}

	d.sessions.Create(p.ContextID)
	d.sessions.UpsertMedia(p.ContextID, &models.MediaResult{
		ItemID:    p.ItemID,
		Kind:      p.Kind,
		SourceURL: p.Locator,
		State:     models.MediaQueued,
	})

	go d.runMediaAnalysis(key, p, cred)

	return &SubmitAck{ContextID: p.ContextID, ItemID: p.ItemID, Fingerprint: fp}, nil
}

func (d *Dispatcher) runMediaAnalysis(key string, p models.SubmitMediaItemPayload, cred models.Credential) {
	defer d.pending.release(key)

	d.sessions.UpsertMedia(p.ContextID, &models.MediaResult{
		ItemID:    p.ItemID,
		Kind:      p.Kind,
		SourceURL: p.Locator,
		State:     models.MediaInFlight,
	})

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.CallTimeout)
	defer cancel()

	summary, confidence, rerr := d.analyzer.AnalyzeMedia(ctx, cred.Token, p.Kind, p.Locator)
	if rerr != nil {
		if rerr.Code == models.ErrCodeAuthExpired {
			d.identity.ReportUnauthorized(cred.Token)
		}
		if !d.sessions.UpsertMedia(p.ContextID, &models.MediaResult{
			ItemID:    p.ItemID,
			Kind:      p.Kind,
			SourceURL: p.Locator,
			State:     models.MediaFailed,
			Error:     rerr,
		}) {
			log.Printf("dispatch: discarding media error for closed context %s item %s", p.ContextID, p.ItemID)
			return
		}
		d.notifier.Publish(bus.Event{
			ContextID: p.ContextID,
			Kind:      models.EventDisplayMedia,
			Payload:   map[string]interface{}{"itemId": p.ItemID, "error": rerr},
		})
		return
	}

	if !d.sessions.UpsertMedia(p.ContextID, &models.MediaResult{
		ItemID:     p.ItemID,
		Kind:       p.Kind,
		SourceURL:  p.Locator,
		State:      models.MediaComplete,
		Summary:    summary,
		Confidence: confidence,
	}) {
		log.Printf("dispatch: discarding media result for closed context %s item %s", p.ContextID, p.ItemID)
		return
	}

	d.notifier.Publish(bus.Event{
		ContextID: p.ContextID,
		Kind:      models.EventDisplayMedia,
		Payload:   map[string]interface{}{"itemId": p.ItemID, "summary": summary, "confidence": confidence},
	})
}

// QueryContext returns the current session for a context. Signed-out
// callers get auth_required rather than stale data.
func (d *Dispatcher) QueryContext(contextID string) (*models.Session, *models.RequestError) {
	if contextID == "" {
		return nil, models.NewError(models.ErrCodeValidation, "contextId is required")
	}
	if !d.identity.Status().SignedIn {
		return nil, models.NewError(models.ErrCodeAuthRequired, "sign-in required")
	}

	session := d.sessions.Get(contextID)
	if session == nil {
		return nil, models.NewError(models.ErrCodeNotFound, "no session for context %s", contextID)
	}
	return session, nil
}

// CloseContext tears down a context's session. In-flight remote calls
// for it are left to finish; their results are discarded on write.
func (d *Dispatcher) CloseContext(contextID string) {
	d.sessions.Remove(contextID)
}

// PendingCount reports the size of the in-flight table
func (d *Dispatcher) PendingCount() int {
	return d.pending.size()
}
