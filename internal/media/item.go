package media

import "time"

// Category classifies a media item.
type Category string

const (
	CategoryMain            Category = "main"
	CategoryIntro           Category = "intro"
	CategoryOutro           Category = "outro"
	CategoryMusic           Category = "music"
	CategoryGeneratedInsert Category = "generated_insert"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryMain, CategoryIntro, CategoryOutro, CategoryMusic, CategoryGeneratedInsert:
		return true
	}
	return false
}

// ProviderDecision records which transcription provider served a media item
// and whether its audio has already been cleaned upstream.
type ProviderDecision struct {
	Provider          string `json:"provider"`
	Reason            string `json:"reason,omitempty"`
	EnhancedProcessed bool   `json:"enhanced_processed"`
	CleanedStorageKey string `json:"cleaned_storage_key,omitempty"`
	Degraded          bool   `json:"degraded,omitempty"`
	DegradedCause     string `json:"degraded_cause,omitempty"`
}

// MediaItem is an uploaded or generated audio asset.
type MediaItem struct {
	ID               string            `json:"id"`
	Owner            string            `json:"owner"`
	Category         Category          `json:"category"`
	StorageKey       string            `json:"storage_key"`
	SourceURI        string            `json:"source_uri,omitempty"`
	TranscriptReady  bool              `json:"transcript_ready"`
	ProviderDecision *ProviderDecision `json:"provider_decision,omitempty"`
	DurationSeconds  float64           `json:"duration_s"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// PreCleaned reports whether upstream processing already removed fillers and
// silences from the item's audio.
func (m MediaItem) PreCleaned() bool {
	return m.ProviderDecision != nil && m.ProviderDecision.EnhancedProcessed
}

// WorkingKey returns the storage key assembly should read: the provider's
// cleaned audio when present, otherwise the original upload.
func (m MediaItem) WorkingKey() string {
	if m.PreCleaned() && m.ProviderDecision.CleanedStorageKey != "" {
		return m.ProviderDecision.CleanedStorageKey
	}
	return m.StorageKey
}

// Transcript is the word sequence owned by exactly one media item.
type Transcript struct {
	MediaItemID string         `json:"media_item_id"`
	Words       []Word         `json:"words"`
	Provider    string         `json:"provider"`
	Metadata    map[string]any `json:"provider_metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
