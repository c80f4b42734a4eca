package media

import (
	"fmt"
	"sort"
	"time"
)

// CommandKind tags the Command variant.
type CommandKind string

const (
	KindCut    CommandKind = "cut"
	KindInsert CommandKind = "insert"
)

// ReviewState tracks human review of a detected command.
type ReviewState string

const (
	ReviewDetected  ReviewState = "detected"
	ReviewReviewed  ReviewState = "reviewed"
	ReviewConfirmed ReviewState = "confirmed"
)

// GenerationState tracks resolution of an insert's spoken response.
type GenerationState string

const (
	GenerationPending GenerationState = "pending"
	GenerationReady   GenerationState = "ready"
	GenerationFailed  GenerationState = "failed"
)

// Command is a cut or insert anchored at a spoken marker. Cut commands only
// use Start and End; the insert fields are empty for them.
type Command struct {
	ID          string      `json:"command_id"`
	MediaItemID string      `json:"media_item_id"`
	Kind        CommandKind `json:"kind"`
	Start       float64     `json:"start_s"`
	End         float64     `json:"end_s"`
	MarkerIndex int         `json:"marker_index"`

	PromptText   string  `json:"prompt_text,omitempty"`
	ResponseText string  `json:"response_text,omitempty"`
	OverrideText string  `json:"override_text,omitempty"`
	AudioRef     string  `json:"audio_ref,omitempty"`
	AudioSeconds float64 `json:"audio_s,omitempty"`
	Voice        string  `json:"voice,omitempty"`
	// SupersededRef is the clip a review edit made stale. It is removed once
	// a replacement clip is stored.
	SupersededRef string `json:"superseded_ref,omitempty"`

	Review        ReviewState     `json:"review_state"`
	Generation    GenerationState `json:"generation_state,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	Regenerations int             `json:"regenerations"`

	// Context is the wider transcript excerpt shown during review. It is never
	// read by generation or cleanup.
	Context string `json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// IsCut reports whether c removes audio.
func (c Command) IsCut() bool { return c.Kind == KindCut }

// IsInsert reports whether c places generated audio.
func (c Command) IsInsert() bool { return c.Kind == KindInsert }

// Ready reports whether an insert has synthesized audio to place.
func (c Command) Ready() bool {
	return c.IsInsert() && c.Generation == GenerationReady && c.AudioRef != ""
}

// Supersede marks an insert's response stale after a review edit. The
// current clip moves to SupersededRef so it can be removed once its
// replacement exists.
func (c *Command) Supersede() {
	if c.SupersededRef == "" {
		c.SupersededRef = c.AudioRef
	}
	c.ResponseText = ""
	c.AudioRef = ""
	c.AudioSeconds = 0
	c.Generation = GenerationPending
	c.FailureReason = ""
}

// Failed marks the command's generation as failed with reason.
func (c *Command) Failed(reason string) {
	c.Generation = GenerationFailed
	c.FailureReason = reason
}

// ValidateForAssembly checks a command submitted with an assembly request.
func (c Command) ValidateForAssembly(duration float64) error {
	if c.ID == "" {
		return fmt.Errorf("command without command_id")
	}
	if c.Kind != KindCut && c.Kind != KindInsert {
		return fmt.Errorf("command %s: unknown kind %q", c.ID, c.Kind)
	}
	if c.Review != ReviewConfirmed {
		return fmt.Errorf("command %s: not confirmed (state %s)", c.ID, c.Review)
	}
	if !(c.Start < c.End) {
		return fmt.Errorf("command %s: start %.3f must precede end %.3f", c.ID, c.Start, c.End)
	}
	if c.Start < 0 || (duration > 0 && c.End > duration+timeEpsilon) {
		return fmt.Errorf("command %s: window [%.3f, %.3f] outside audio duration %.3f", c.ID, c.Start, c.End, duration)
	}
	return nil
}

const timeEpsilon = 1e-6

// Span is a half-open time range in seconds.
type Span struct {
	Start float64 `json:"start_s"`
	End   float64 `json:"end_s"`
}

// Length returns the span duration.
func (s Span) Length() float64 { return s.End - s.Start }

// Cuts returns the cut windows of cmds as spans, in input order.
func Cuts(cmds []Command) []Span {
	var spans []Span
	for _, c := range cmds {
		if c.IsCut() {
			spans = append(spans, Span{Start: c.Start, End: c.End})
		}
	}
	return spans
}

// MergeSpans returns the union of spans sorted by start. Spans that overlap
// or are separated by at most gap seconds are joined. Empty spans are
// dropped.
func MergeSpans(spans []Span, gap float64) []Span {
	sorted := make([]Span, 0, len(spans))
	for _, s := range spans {
		if s.End > s.Start {
			sorted = append(sorted, s)
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})
	var out []Span
	for _, s := range sorted {
		if n := len(out); n > 0 && s.Start <= out[n-1].End+gap {
			if s.End > out[n-1].End {
				out[n-1].End = s.End
			}
			continue
		}
		out = append(out, s)
	}
	return out
}
