package mix

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"splicer/internal/audio"
	"splicer/internal/logging"
)

// Encoder converts a WAV master into another container format.
type Encoder interface {
	Export(ctx context.Context, srcWAV, dst, format string) error
}

// Output is one exported file.
type Output struct {
	Format  string
	Path    string
	Seconds float64
}

// Exporter writes final renditions.
type Exporter struct {
	encoder Encoder
	logger  *slog.Logger
}

// NewExporter constructs an exporter. encoder may be nil when only WAV is
// produced.
func NewExporter(encoder Encoder, logger *slog.Logger) *Exporter {
	return &Exporter{encoder: encoder, logger: logging.NewComponentLogger(logger, "mix")}
}

// Export writes clip as <dir>/<base>.wav and derives every other requested
// format from it. The WAV master is always returned first.
func (e *Exporter) Export(ctx context.Context, clip audio.Clip, dir, base string, formats []string) ([]Output, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("export: create directory: %w", err)
	}
	master := filepath.Join(dir, base+".wav")
	if err := audio.WriteWAV(master, clip); err != nil {
		return nil, fmt.Errorf("export: write master: %w", err)
	}
	outputs := []Output{{Format: "wav", Path: master, Seconds: clip.Duration()}}

	var seen []string
	for _, format := range formats {
		format = strings.ToLower(strings.TrimSpace(format))
		if format == "" || format == "wav" || slices.Contains(seen, format) {
			continue
		}
		seen = append(seen, format)
		if !audio.SupportsFormat(format) {
			return outputs, fmt.Errorf("export: unsupported format %q", format)
		}
		if e.encoder == nil {
			return outputs, fmt.Errorf("export: no encoder for %s", format)
		}
		dst := filepath.Join(dir, base+"."+format)
		if err := e.encoder.Export(ctx, master, dst, format); err != nil {
			return outputs, err
		}
		outputs = append(outputs, Output{Format: format, Path: dst, Seconds: clip.Duration()})
		e.logger.Debug("derivative exported", logging.String("format", format), logging.String("path", dst))
	}
	return outputs, nil
}
