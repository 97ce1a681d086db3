// Package auth owns the single process-wide credential and its lifecycle:
// SignedOut -> Authenticating -> SignedIn -> SignedOut. Only one
// authentication attempt runs at a time.
package auth

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/credlens/coordinator/internal/bus"
	"github.com/credlens/coordinator/pkg/models"
)

// Manager is the identity manager. All state behind one mutex; callers
// get snapshots, never live references.
type Manager struct {
	mu    sync.Mutex
	state models.AuthState
	cred  *models.Credential

	provider Provider
	identity IdentityClient
	notifier *bus.Bus
	timeout  time.Duration
}

// NewManager creates a signed-out identity manager
func NewManager(provider Provider, identity IdentityClient, notifier *bus.Bus, timeout time.Duration) *Manager {
	return &Manager{
		state:    models.SignedOut,
		provider: provider,
		identity: identity,
		notifier: notifier,
		timeout:  timeout,
	}
}

// SignIn runs the interactive sign-in flow. Calling it while a flow is
// already running returns auth_in_progress without starting a second
// one; calling it while signed in just returns the current status.
func (m *Manager) SignIn(ctx context.Context) (models.AuthStatus, *models.RequestError) {
	m.mu.Lock()
	switch m.state {
	case models.Authenticating:
		m.mu.Unlock()
		return models.AuthStatus{}, models.NewError(models.ErrCodeAuthInProgress, "sign-in already in progress")
	case models.SignedIn:
		status := m.statusLocked()
		m.mu.Unlock()
		return status, nil
	}
	m.state = models.Authenticating
	m.mu.Unlock()

	token, err := m.provider.Acquire(ctx)
	if err != nil {
		m.rollback()
		return models.AuthStatus{}, models.NewError(models.ErrCodeAuthFailed, "token grant failed: %v", err)
	}

	return m.completeSignIn(ctx, token)
}

// Rehydrate attempts a non-interactive sign-in on startup. The
// coordinator may have been killed and restarted between events; the
// credential is the only state worth re-deriving.
func (m *Manager) Rehydrate(ctx context.Context) error {
	m.mu.Lock()
	if m.state != models.SignedOut {
		m.mu.Unlock()
		return nil
	}
	m.state = models.Authenticating
	m.mu.Unlock()

	token, err := m.provider.AcquireSilent(ctx)
	if err != nil {
		m.rollback()
		return err
	}

	if _, rerr := m.completeSignIn(ctx, token); rerr != nil {
		return rerr
	}
	return nil
}

// completeSignIn performs the mandatory profile fetch and commits the
// credential. A failed fetch revokes the token and rolls back to
// SignedOut so no half-valid credential is retained. A sign-out issued
// while the grant was in flight wins: the flow aborts and the fresh
// token is revoked instead of committed.
func (m *Manager) completeSignIn(ctx context.Context, token string) (models.AuthStatus, *models.RequestError) {
	profile, err := m.identity.FetchProfile(ctx, token)
	if err != nil {
		m.revokeQuietly(token)
		m.rollback()
		return models.AuthStatus{}, models.NewError(models.ErrCodeAuthFailed, "profile fetch failed: %v", err)
	}

	m.mu.Lock()
	if m.state != models.Authenticating {
		m.mu.Unlock()
		m.revokeQuietly(token)
		return models.AuthStatus{}, models.NewError(models.ErrCodeAuthFailed, "sign-in cancelled")
	}
	m.cred = &models.Credential{Token: token, Profile: profile}
	m.state = models.SignedIn
	status := m.statusLocked()
	m.mu.Unlock()

	m.publish(status)
	return status, nil
}

// SignOut clears the credential and revokes it remotely, best effort.
// Idempotent while signed out.
func (m *Manager) SignOut(ctx context.Context) {
	m.mu.Lock()
	var token string
	if m.cred != nil {
		token = m.cred.Token
	}
	alreadyOut := m.state == models.SignedOut
	m.cred = nil
	m.state = models.SignedOut
	status := m.statusLocked()
	m.mu.Unlock()

	if alreadyOut {
		return
	}
	if token != "" {
		m.revokeQuietly(token)
	}
	m.publish(status)
}

// ReportUnauthorized handles a 401 seen by any consumer. The stale
// credential is dropped and subscribers are told to sign in again. A
// report about a token that has already been replaced is ignored.
func (m *Manager) ReportUnauthorized(token string) {
	m.mu.Lock()
	if m.state != models.SignedIn || m.cred == nil || m.cred.Token != token {
		m.mu.Unlock()
		return
	}
	m.cred = nil
	m.state = models.SignedOut
	status := m.statusLocked()
	m.mu.Unlock()

	log.Printf("auth: credential rejected by remote service, signing out")
	m.publish(status)
}

// Snapshot returns the current credential for an outbound call, or
// auth_required when signed out.
func (m *Manager) Snapshot() (models.Credential, *models.RequestError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != models.SignedIn || m.cred == nil {
		return models.Credential{}, models.NewError(models.ErrCodeAuthRequired, "sign-in required")
	}
	return *m.cred, nil
}

// Status reports the current auth state for UI surfaces
func (m *Manager) Status() models.AuthStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

// State exposes the lifecycle state, mainly for tests and diagnostics
func (m *Manager) State() models.AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) statusLocked() models.AuthStatus {
	status := models.AuthStatus{SignedIn: m.state == models.SignedIn}
	if m.cred != nil {
		p := m.cred.Profile
		status.Profile = &p
	}
	return status
}

func (m *Manager) rollback() {
	m.mu.Lock()
	m.cred = nil
	m.state = models.SignedOut
	m.mu.Unlock()
}

func (m *Manager) revokeQuietly(token string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.identity.Revoke(ctx, token); err != nil {
		log.Printf("auth: token revoke failed: %v", err)
	}
}

func (m *Manager) publish(status models.AuthStatus) {
	m.notifier.Publish(bus.Event{
		Kind:    models.EventAuthStateUpdated,
		Payload: status,
	})
}
