package models

// AuthState is the lifecycle state of the single process-wide credential
type AuthState string

const (
	SignedOut      AuthState = "SIGNED_OUT"
	Authenticating AuthState = "AUTHENTICATING"
	SignedIn       AuthState = "SIGNED_IN"
)

// Profile holds the identity fields returned by the identity service.
// Tier drives quota decisions on the remote side; the coordinator only
// carries it through.
type Profile struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Tier  string `json:"tier,omitempty"`
}

// Credential is a point-in-time snapshot of the current identity. Holders
// must treat it as potentially stale: the manager re-checks on attach.
type Credential struct {
	Token   string
	Profile Profile
}

// AuthStatus is what UI surfaces see via getAuthState / authStateUpdated
type AuthStatus struct {
	SignedIn bool     `json:"signedIn"`
	Profile  *Profile `json:"profile,omitempty"`
}
