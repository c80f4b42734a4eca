package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner executes an external tool and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	return cmd.CombinedOutput()
}

// Converter shells out to ffmpeg/ffprobe for formats the in-process WAV codec
// does not handle.
type Converter struct {
	ffmpeg  string
	ffprobe string
	run     Runner
}

// NewConverter builds a converter for the given ffmpeg binary. The ffprobe
// binary is looked up next to it.
func NewConverter(ffmpegBinary string) *Converter {
	ffmpegBinary = strings.TrimSpace(ffmpegBinary)
	if ffmpegBinary == "" {
		ffmpegBinary = "ffmpeg"
	}
	probe := "ffprobe"
	if dir := filepath.Dir(ffmpegBinary); dir != "." {
		probe = filepath.Join(dir, "ffprobe")
	}
	return &Converter{ffmpeg: ffmpegBinary, ffprobe: probe, run: execRunner}
}

// WithRunner replaces the command runner (for testing).
func (c *Converter) WithRunner(run Runner) *Converter {
	if run != nil {
		c.run = run
	}
	return c
}

// ToWAV converts src to a mono 16-bit WAV at the given sample rate.
func (c *Converter) ToWAV(ctx context.Context, src, dst string, rate int) error {
	if rate <= 0 {
		return fmt.Errorf("to wav: invalid sample rate %d", rate)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("to wav: create directory: %w", err)
	}
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", src,
		"-vn",
		"-ar", strconv.Itoa(rate),
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"-y", dst,
	}
	if out, err := c.run(ctx, c.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg convert %s: %w: %s", filepath.Base(src), err, strings.TrimSpace(string(out)))
	}
	return nil
}

// exportCodecs maps supported export formats to ffmpeg encoder arguments.
var exportCodecs = map[string][]string{
	"mp3":  {"-c:a", "libmp3lame", "-q:a", "2"},
	"m4a":  {"-c:a", "aac", "-b:a", "192k"},
	"ogg":  {"-c:a", "libvorbis", "-q:a", "5"},
	"flac": {"-c:a", "flac"},
}

// SupportsFormat reports whether Export can produce format.
func SupportsFormat(format string) bool {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "wav" {
		return true
	}
	_, ok := exportCodecs[format]
	return ok
}

// Export encodes an existing WAV file into dst using the named format.
func (c *Converter) Export(ctx context.Context, srcWAV, dst, format string) error {
	format = strings.ToLower(strings.TrimSpace(format))
	codec, ok := exportCodecs[format]
	if !ok {
		return fmt.Errorf("export: unsupported format %q", format)
	}
	args := []string{"-hide_banner", "-loglevel", "error", "-i", srcWAV}
	args = append(args, codec...)
	args = append(args, "-y", dst)
	if out, err := c.run(ctx, c.ffmpeg, args...); err != nil {
		return fmt.Errorf("ffmpeg export %s: %w: %s", format, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Load decodes path into a clip at rate. 16-bit WAV files at the target
// rate are read in-process; anything else goes through ffmpeg into workDir.
func (c *Converter) Load(ctx context.Context, path string, rate int, workDir string) (Clip, error) {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		clip, err := ReadWAV(path)
		switch {
		case err == nil && clip.Rate == rate:
			return clip, nil
		case err == nil:
			return Resample(clip, rate), nil
		case !errors.Is(err, ErrUnsupportedWAV):
			return Clip{}, err
		}
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Clip{}, fmt.Errorf("load: create work dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dst := filepath.Join(workDir, base+".decoded.wav")
	if err := c.ToWAV(ctx, path, dst, rate); err != nil {
		return Clip{}, err
	}
	return ReadWAV(dst)
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeDuration returns the container duration in seconds as reported by
// ffprobe.
func (c *Converter) ProbeDuration(ctx context.Context, path string) (float64, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, errors.New("ffprobe: empty path")
	}
	out, err := c.run(ctx, c.ffprobe, "-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(string(out)))
	}
	var parsed probeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return 0, fmt.Errorf("ffprobe parse: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(parsed.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", parsed.Format.Duration, err)
	}
	return seconds, nil
}
