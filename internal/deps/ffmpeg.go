package deps

import (
	"slices"
	"strings"
)

// FFmpegRequirement describes the ffmpeg binary used to decode uploads and
// encode export formats. WAV is read and written natively, so ffmpeg is
// optional when every export format is WAV.
func FFmpegRequirement(binary string, formats []string) Requirement {
	optional := len(formats) > 0 && !slices.ContainsFunc(formats, func(f string) bool {
		return !strings.EqualFold(strings.TrimSpace(f), "wav")
	})
	desc := "Required for compressed uploads and non-WAV exports"
	if optional {
		desc = "Needed only for compressed uploads"
	}
	return Requirement{
		Name:        "FFmpeg",
		Command:     binary,
		Description: desc,
		Optional:    optional,
	}
}
