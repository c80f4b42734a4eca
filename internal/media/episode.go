package media

import (
	"slices"
	"time"
)

// EpisodeStatus is a lifecycle state of an episode.
type EpisodeStatus string

const (
	StatusDraft      EpisodeStatus = "draft"
	StatusQueued     EpisodeStatus = "queued"
	StatusProcessing EpisodeStatus = "processing"
	StatusProcessed  EpisodeStatus = "processed"
	StatusPublished  EpisodeStatus = "published"
	StatusError      EpisodeStatus = "error"
)

var transitions = map[EpisodeStatus][]EpisodeStatus{
	StatusDraft:      {StatusQueued},
	StatusQueued:     {StatusProcessing, StatusError},
	StatusProcessing: {StatusProcessed, StatusError, StatusQueued},
	StatusProcessed:  {StatusPublished},
	StatusError:      {StatusQueued},
}

// CanTransition reports whether an episode may move from one status to another.
// processing -> queued is the stale-attempt reclaim path.
func CanTransition(from, to EpisodeStatus) bool {
	return slices.Contains(transitions[from], to)
}

// Terminal reports whether an attempt in this status has finished.
func (s EpisodeStatus) Terminal() bool {
	switch s {
	case StatusProcessed, StatusPublished, StatusError:
		return true
	}
	return false
}

// Chapter is a derived chapter marker on the final timeline.
type Chapter struct {
	Start float64 `json:"start_s"`
	Title string  `json:"title"`
}

// EpisodeMetadata holds metadata derived from the assembled transcript.
type EpisodeMetadata struct {
	Tags     []string  `json:"tags,omitempty"`
	Summary  string    `json:"summary,omitempty"`
	Chapters []Chapter `json:"chapters,omitempty"`
}

// Derivative is one exported rendition of the final audio.
type Derivative struct {
	Format     string  `json:"format"`
	StorageKey string  `json:"storage_key"`
	Seconds    float64 `json:"duration_s"`
}

// Episode is the unit of assembly.
type Episode struct {
	ID            string          `json:"id"`
	Owner         string          `json:"owner"`
	Tier          string          `json:"tier,omitempty"`
	Title         string          `json:"title"`
	Status        EpisodeStatus   `json:"status"`
	MediaItemID   string          `json:"media_item_id"`
	TemplateID    string          `json:"template_id,omitempty"`
	WorkingAudio  string          `json:"working_audio,omitempty"`
	Commands      []Command       `json:"commands,omitempty"`
	OptionsJSON   string          `json:"-"`
	FinalAudio    string          `json:"final_audio,omitempty"`
	Derivatives   []Derivative    `json:"derivatives,omitempty"`
	Metadata      EpisodeMetadata `json:"metadata"`
	Warnings      []string        `json:"warnings,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	JobHandle     string          `json:"job_handle,omitempty"`
	Attempts      int             `json:"attempts"`
	LastHeartbeat *time.Time      `json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Template describes the fixed assets mixed around the main content.
type Template struct {
	ID                  string  `json:"id"`
	Owner               string  `json:"owner"`
	IntroMediaID        string  `json:"intro_media_id,omitempty"`
	OutroMediaID        string  `json:"outro_media_id,omitempty"`
	MusicMediaID        string  `json:"music_media_id,omitempty"`
	MusicGainDB         float64 `json:"music_gain_db"`
	DuckGainDB          float64 `json:"duck_gain_db"`
	IntroOverlapSeconds float64 `json:"intro_overlap_s"`
}

// LedgerEntry is a single billing charge, unique per correlation id.
type LedgerEntry struct {
	ID            int64     `json:"id"`
	CorrelationID string    `json:"correlation_id"`
	Owner         string    `json:"owner"`
	EpisodeID     string    `json:"episode_id"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	Refunded      bool      `json:"refunded"`
	CreatedAt     time.Time `json:"created_at"`
}
