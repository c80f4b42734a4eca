package chunk_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"splicer/internal/audio"
	"splicer/internal/chunk"
	"splicer/internal/cleanup"
	"splicer/internal/logging"
	"splicer/internal/media"
	"splicer/internal/services"
	"splicer/internal/testsupport"
)

const rate = 8000

func script(n int) string {
	fields := make([]string, n)
	for i := range fields {
		fields[i] = fmt.Sprintf("w%02d", i)
		if i%7 == 3 {
			fields[i] = "um"
		}
	}
	return strings.Join(fields, " ")
}

func fixture() (audio.Clip, []media.Word) {
	words := testsupport.Words(script(40), 0.5, 0.3, 0.2)
	return testsupport.SpeechTrack(rate, 21, words), words
}

func TestCount(t *testing.T) {
	cases := []struct {
		duration, target float64
		want             int
	}{
		{100, 0, 1},
		{100, 300, 1},
		{300, 300, 1},
		{301, 300, 2},
		{1340.976, 300, 5},
	}
	for _, tc := range cases {
		if got := chunk.Count(tc.duration, tc.target); got != tc.want {
			t.Fatalf("Count(%v, %v) = %d, want %d", tc.duration, tc.target, got, tc.want)
		}
	}
}

func TestSplitPlacesBoundariesBetweenWords(t *testing.T) {
	clip, words := fixture()
	for _, n := range []int{1, 2, 3, 4, 7, 13} {
		chunks := chunk.Split(clip, words, n)
		if len(chunks) == 0 || len(chunks) > n {
			t.Fatalf("n=%d: got %d chunks", n, len(chunks))
		}
		if chunks[0].From != 0 || chunks[len(chunks)-1].To != clip.Len() {
			t.Fatalf("n=%d: chunks do not cover the clip", n)
		}
		for i, c := range chunks {
			if c.Index != i || c.Samples() <= 0 || c.ID == "" {
				t.Fatalf("n=%d: bad chunk %+v", n, c)
			}
			if i > 0 && chunks[i-1].To != c.From {
				t.Fatalf("n=%d: gap or overlap at chunk %d", n, i)
			}
			for _, w := range words {
				a, b := audio.SampleIndex(rate, w.Start), audio.SampleIndex(rate, w.End)
				if c.From > a && c.From < b {
					t.Fatalf("n=%d: boundary %d cuts through %q", n, c.From, w.Text)
				}
			}
		}
		if got := chunk.SourceDuration(rate, chunks); math.Abs(got-clip.Duration()) > 1e-9 {
			t.Fatalf("n=%d: chunk durations sum to %v, want %v", n, got, clip.Duration())
		}
	}
}

func TestProcessMatchesSinglePass(t *testing.T) {
	clip, words := fixture()
	cuts := []media.Span{{Start: 2.45, End: 3.9}, {Start: 9.1, End: 11.95}, {Start: 17.0, End: 17.5}}
	opts := cleanup.Options{RemoveFillers: true, FillerWords: []string{"um"}}

	want, err := cleanup.Clean(clip, words, cuts, opts)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	coord := chunk.NewCoordinator(chunk.Options{Workers: 2, Attempts: 2, WorkDir: t.TempDir(), Cleanup: opts}, logging.NewNop())
	got, err := coord.Process(context.Background(), clip, words, cuts, 4)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !slices.Equal(got.Audio.Samples, want.Audio.Samples) {
		t.Fatalf("chunked audio differs: %d vs %d samples", got.Audio.Len(), want.Audio.Len())
	}
	if !slices.Equal(got.Edits.Ranges, want.Edits.Ranges) {
		t.Fatalf("edits differ:\n%v\n%v", got.Edits.Ranges, want.Edits.Ranges)
	}
	if len(got.Words) != len(want.Words) {
		t.Fatalf("word count %d, want %d", len(got.Words), len(want.Words))
	}
	for i := range want.Words {
		g, w := got.Words[i], want.Words[i]
		if g.Text != w.Text || math.Abs(g.Start-w.Start) > 1e-6 || math.Abs(g.End-w.End) > 1e-6 {
			t.Fatalf("word %d: %+v vs %+v", i, g, w)
		}
	}
	if want.Stats.Fillers != got.Stats.Fillers {
		t.Fatalf("filler stats %d vs %d", got.Stats.Fillers, want.Stats.Fillers)
	}
}

func TestRevalidateKeepsSpokenContent(t *testing.T) {
	clip, words := fixture()
	cuts := []media.Span{{Start: 4.45, End: 6.4}}
	coord := chunk.NewCoordinator(chunk.Options{Workers: 3, WorkDir: t.TempDir()}, logging.NewNop())
	res, err := coord.Process(context.Background(), clip, words, cuts, 3)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	anchor := words[30]
	insert := media.Command{ID: "ins", Kind: media.KindInsert, Start: words[29].Start, End: anchor.End}
	mapped, err := chunk.Revalidate([]media.Command{insert}, res.Edits, res.Duration())
	if err != nil {
		t.Fatalf("Revalidate: %v", err)
	}
	idx := slices.IndexFunc(res.Words, func(w media.Word) bool { return w.Text == anchor.Text })
	if idx < 0 || math.Abs(res.Words[idx].End-mapped[0].End) > 1e-6 {
		t.Fatalf("insert end %v does not match %q ending at %v", mapped[0].End, anchor.Text, res.Words[idx].End)
	}

	outside := media.Command{ID: "late", Kind: media.KindInsert, Start: 1, End: clip.Duration() + 5}
	if _, err := chunk.Revalidate([]media.Command{outside}, res.Edits, res.Duration()); !errors.Is(err, services.ErrAssemblyFatal) {
		t.Fatalf("expected ErrAssemblyFatal, got %v", err)
	}
}

func TestProcessRetriesFailedChunks(t *testing.T) {
	clip, words := fixture()
	var mu sync.Mutex
	calls := 0
	flaky := func(c audio.Clip, w []media.Word, s []media.Span, o cleanup.Options) (cleanup.Result, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			return cleanup.Result{}, errors.New("worker crashed")
		}
		return cleanup.Clean(c, w, s, o)
	}
	var sleeps []time.Duration
	coord := chunk.NewCoordinator(chunk.Options{Workers: 1, Attempts: 3, BaseDelay: time.Second, WorkDir: t.TempDir()}, logging.NewNop()).
		WithCleaner(flaky).
		WithSleeper(func(d time.Duration) { sleeps = append(sleeps, d) })

	res, err := coord.Process(context.Background(), clip, words, nil, 3)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Audio.Len() != clip.Len() || calls != 4 || len(sleeps) != 1 {
		t.Fatalf("len=%d calls=%d sleeps=%v", res.Audio.Len(), calls, sleeps)
	}
}

func TestProcessFailsWhenChunkExhaustsRetries(t *testing.T) {
	clip, words := fixture()
	workDir := t.TempDir()
	var mu sync.Mutex
	calls := 0
	broken := func(audio.Clip, []media.Word, []media.Span, cleanup.Options) (cleanup.Result, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return cleanup.Result{}, errors.New("out of memory")
	}
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	coord := chunk.NewCoordinator(chunk.Options{Workers: 2, Attempts: 2, WorkDir: workDir}, logger).
		WithCleaner(broken).
		WithSleeper(func(time.Duration) {})

	_, err := coord.Process(context.Background(), clip, words, nil, 2)
	if !errors.Is(err, services.ErrChunkFailed) {
		t.Fatalf("expected ErrChunkFailed, got %v", err)
	}
	if calls != 4 {
		t.Fatalf("cleaner calls = %d, want 4", calls)
	}
	var line struct {
		Msg     string `json:"msg"`
		ChunkID string `json:"chunk_id"`
	}
	if err := json.Unmarshal(bytes.SplitN(logBuf.Bytes(), []byte("\n"), 2)[0], &line); err != nil {
		t.Fatalf("decode log line: %v (%s)", err, logBuf.String())
	}
	if line.Msg != "chunk failed" {
		t.Fatalf("first warning = %q", line.Msg)
	}
	if _, err := uuid.Parse(line.ChunkID); err != nil {
		t.Fatalf("chunk failure not tagged with a chunk id: %q", line.ChunkID)
	}
	entries, _ := os.ReadDir(workDir)
	if len(entries) != 0 {
		t.Fatalf("work dir not cleaned: %v", entries)
	}
}

func TestReassembleRejectsMismatchedResults(t *testing.T) {
	clip, words := fixture()
	chunks := chunk.Split(clip, words, 2)
	if _, err := chunk.Reassemble(rate, chunks, nil); !errors.Is(err, services.ErrChunkFailed) {
		t.Fatalf("expected ErrChunkFailed for missing results, got %v", err)
	}
	results := make([]cleanup.Result, len(chunks))
	for i, c := range chunks {
		results[i] = cleanup.Result{Audio: clip.Slice(c.From, c.To), Edits: cleanup.Edits{Rate: rate}}
	}
	results[0].Audio.Samples = results[0].Audio.Samples[:10]
	if _, err := chunk.Reassemble(rate, chunks, results); !errors.Is(err, services.ErrChunkFailed) {
		t.Fatalf("expected ErrChunkFailed for lost samples, got %v", err)
	}
}
