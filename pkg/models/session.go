package models

import "time"

// MediaKind identifies which analysis endpoint handles a media item
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// Valid reports whether the kind maps to a known endpoint
func (k MediaKind) Valid() bool {
	return k == MediaImage || k == MediaVideo || k == MediaAudio
}

// MediaState is the lifecycle state of a single media item
type MediaState string

const (
	MediaQueued   MediaState = "queued"
	MediaInFlight MediaState = "in_flight"
	MediaComplete MediaState = "complete"
	MediaFailed   MediaState = "failed"
)

// rank orders lifecycle states so the store can reject backward transitions
func (s MediaState) rank() int {
	switch s {
	case MediaQueued:
		return 0
	case MediaInFlight:
		return 1
	case MediaComplete, MediaFailed:
		return 2
	}
	return -1
}

// Precedes reports whether s comes strictly before other in the lifecycle.
// Terminal states (complete, failed) share a rank: one terminal result may
// replace another, but nothing moves back to queued or in_flight.
func (s MediaState) Precedes(other MediaState) bool {
	return s.rank() < other.rank()
}

// FactCheckClaim is one claim-review entry returned by the fact-check service
type FactCheckClaim struct {
	Source string `json:"source"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Claim  string `json:"claim"`
}

// TextResult is the verdict for a page's article text.
// Label is LABEL_0 (likely credible) or LABEL_1 (likely misleading).
// Error is set instead of the verdict fields when the analysis failed,
// so a query can tell "errored" apart from "no result yet".
type TextResult struct {
	Label      string           `json:"label,omitempty"`
	Score      float64          `json:"score,omitempty"`
	Highlights []string         `json:"highlights,omitempty"`
	FactCheck  []FactCheckClaim `json:"fact_check,omitempty"`
	Error      *RequestError    `json:"error,omitempty"`
	UpdatedAt  time.Time        `json:"updatedAt"`
}

// MediaResult is the per-item analysis outcome. Confidence is the remote
// service's manipulation confidence for the item; its exact scale is owned
// by the service, not by the coordinator.
type MediaResult struct {
	ItemID     string        `json:"itemId"`
	Kind       MediaKind     `json:"kind"`
	SourceURL  string        `json:"sourceUrl"`
	State      MediaState    `json:"state"`
	Summary    string        `json:"summary,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	Error      *RequestError `json:"error,omitempty"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}

// Session is the per-page-context analysis state. It is a best-effort
// in-memory cache: a coordinator restart starts with an empty table.
type Session struct {
	ContextID    string                  `json:"contextId"`
	TextResult   *TextResult             `json:"textResult,omitempty"`
	MediaResults map[string]*MediaResult `json:"mediaResults,omitempty"`
	CreatedAt    time.Time               `json:"createdAt"`
	UpdatedAt    time.Time               `json:"updatedAt"`
}
