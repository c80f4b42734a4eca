package config

import "time"

// Pipeline is the immutable option set threaded through one assembly attempt.
type Pipeline struct {
	CutLookback       float64
	CutTrailingPad    float64
	InsertTerminators []string
	InsertMaxSeconds  float64

	FailPolicy       string
	Voice            string
	PrePad           float64
	PostPad          float64
	MaxRegenerations int

	RemoveFillers      bool
	FillerWords        []string
	CompressSilence    bool
	MaxSilence         float64
	SilenceThresholdDB float64

	ChunkThreshold float64
	ChunkTarget    float64
	ChunkWorkers   int
	ChunkAttempts  int

	TargetPeakDB float64
	Formats      []string
	SampleRate   int

	ProcessingTimeout time.Duration
}

// PipelineOverrides carries the request-level options accepted with an
// assembly submission. Nil fields keep the configured value.
type PipelineOverrides struct {
	FailPolicy      *string  `json:"fail_policy,omitempty"`
	Voice           *string  `json:"voice,omitempty"`
	PrePadSeconds   *float64 `json:"pre_pad_seconds,omitempty"`
	PostPadSeconds  *float64 `json:"post_pad_seconds,omitempty"`
	RemoveFillers   *bool    `json:"remove_fillers,omitempty"`
	CompressSilence *bool    `json:"compress_silence,omitempty"`
	Formats         []string `json:"formats,omitempty"`
}

// PipelineOptions snapshots the configuration into a Pipeline value.
func (c *Config) PipelineOptions() Pipeline {
	return Pipeline{
		CutLookback:        c.Detection.CutLookbackSeconds,
		CutTrailingPad:     c.Detection.CutTrailingPadSeconds,
		InsertTerminators:  append([]string(nil), c.Detection.InsertTerminators...),
		InsertMaxSeconds:   c.Detection.InsertMaxSeconds,
		FailPolicy:         c.Generation.FailPolicy,
		Voice:              c.Generation.Voice,
		PrePad:             c.Generation.PrePadSeconds,
		PostPad:            c.Generation.PostPadSeconds,
		MaxRegenerations:   c.Generation.MaxRegenerations,
		RemoveFillers:      c.Cleanup.RemoveFillers,
		FillerWords:        append([]string(nil), c.Cleanup.FillerWords...),
		CompressSilence:    c.Cleanup.CompressSilence,
		MaxSilence:         c.Cleanup.MaxSilenceSeconds,
		SilenceThresholdDB: c.Cleanup.SilenceThresholdDB,
		ChunkThreshold:     c.Chunking.ThresholdSeconds,
		ChunkTarget:        c.Chunking.TargetChunkSeconds,
		ChunkWorkers:       c.Chunking.Workers,
		ChunkAttempts:      c.Chunking.MaxAttempts,
		TargetPeakDB:       c.Mixing.TargetPeakDB,
		Formats:            append([]string(nil), c.Mixing.Formats...),
		SampleRate:         c.Mixing.SampleRate,
		ProcessingTimeout:  time.Duration(c.Workflow.ProcessingTimeout) * time.Second,
	}
}

// Apply returns a copy of p with the non-nil overrides applied.
func (p Pipeline) Apply(o PipelineOverrides) Pipeline {
	if o.FailPolicy != nil && (*o.FailPolicy == FailPolicyBlock || *o.FailPolicy == FailPolicySkip) {
		p.FailPolicy = *o.FailPolicy
	}
	if o.Voice != nil && *o.Voice != "" {
		p.Voice = *o.Voice
	}
	if o.PrePadSeconds != nil && *o.PrePadSeconds >= 0 {
		p.PrePad = *o.PrePadSeconds
	}
	if o.PostPadSeconds != nil && *o.PostPadSeconds >= 0 {
		p.PostPad = *o.PostPadSeconds
	}
	if o.RemoveFillers != nil {
		p.RemoveFillers = *o.RemoveFillers
	}
	if o.CompressSilence != nil {
		p.CompressSilence = *o.CompressSilence
	}
	if formats := normalizeList(o.Formats); len(formats) > 0 {
		p.Formats = formats
	}
	return p
}
